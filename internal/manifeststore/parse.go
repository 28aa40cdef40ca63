package manifeststore

import (
	"encoding/json"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"
)

// Parse decodes a File's raw content according to its FileType, the
// lint hook callers may run alongside a write: config files decode as
// plain JSON/YAML documents, job files must decode as a single
// batch/v1 Job.
// It returns a *core.Error of kind Invalid when content does not match
// its declared type. The HTTP layer reports that as a lint warning on
// modified-file creation; the write itself is not refused.
func Parse(fileType FileType, content []byte) (any, error) {
	switch fileType {
	case FileTypeJob:
		return parseJob(content)
	case FileTypeConfig:
		return parseConfig(content)
	default:
		return nil, fmt.Errorf("manifeststore: unknown file type %q", fileType)
	}
}

func parseJob(content []byte) (*batchv1.Job, error) {
	u := &unstructured.Unstructured{}
	if err := yaml.Unmarshal(content, &u.Object); err != nil {
		return nil, invalidManifestError("job", err)
	}
	if u.GetKind() != "" && u.GetKind() != "Job" {
		return nil, invalidManifestError("job", fmt.Errorf("kind %q is not Job", u.GetKind()))
	}
	job := &batchv1.Job{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, job); err != nil {
		return nil, invalidManifestError("job", err)
	}
	return job, nil
}

func parseConfig(content []byte) (map[string]any, error) {
	var out map[string]any
	if err := yaml.Unmarshal(content, &out); err != nil {
		return nil, invalidManifestError("config", err)
	}
	return out, nil
}

// ReencodeJSON normalizes YAML-or-JSON content into canonical JSON
// bytes, used when inlining a config file into an Evaluation Task's
// ConfigMap.
func ReencodeJSON(content []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(content, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

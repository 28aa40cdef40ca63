package registrybridge

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/registrybridge/registry"
)

// renderContext is substituted into the application template.
type renderContext struct {
	RunID        string
	ExperimentID string
	Timestamp    string
	ModelName    string
	ModelVersion string
}

func newRenderContext(v registry.ModelVersion) renderContext {
	return renderContext{
		RunID:        v.RunID,
		ExperimentID: v.ExperimentID,
		Timestamp:    v.Timestamp.Format(time.RFC3339),
		ModelName:    v.ModelName,
		ModelVersion: v.ModelVersion,
	}
}

// renderApplication executes the application template for a model
// version not yet mirrored.
func renderApplication(tmplSource []byte, v registry.ModelVersion) ([]byte, error) {
	tmpl, err := template.New("application").Option("missingkey=error").Parse(string(tmplSource))
	if err != nil {
		return nil, fmt.Errorf("parsing application template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newRenderContext(v)); err != nil {
		return nil, fmt.Errorf("executing application template: %w", err)
	}
	return buf.Bytes(), nil
}

// updateGlobalBlock rewrites the `global` block of an already-mirrored
// application manifest in place when model_name or model_version has
// changed, leaving every other field untouched.
func updateGlobalBlock(existing []byte, v registry.ModelVersion) ([]byte, bool, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(existing, &doc); err != nil {
		return nil, false, fmt.Errorf("parsing mirrored application manifest: %w", err)
	}

	globalRaw, _ := doc["global"].(map[string]interface{})
	if globalRaw == nil {
		globalRaw = map[string]interface{}{}
	}

	currentName, _ := globalRaw["model_name"].(string)
	currentVersion, _ := globalRaw["model_version"].(string)
	if currentName == v.ModelName && currentVersion == v.ModelVersion {
		return existing, false, nil
	}

	globalRaw["model_name"] = v.ModelName
	globalRaw["model_version"] = v.ModelVersion
	doc["global"] = globalRaw

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("re-encoding application manifest: %w", err)
	}
	return out, true, nil
}

package evalscheduler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleJob = `
apiVersion: batch/v1
kind: Job
metadata:
  name: bench-job
spec:
  template:
    spec:
      containers:
      - name: bench
        image: example/bench:latest
      restartPolicy: Never
`

func TestComposeSubmissionInjectsEnvAndConfigMap(t *testing.T) {
	combined, name, err := composeSubmission([]byte(sampleJob), []byte(`{"batch_size": 8}`), "http://svc:8000", "")
	require.NoError(t, err)
	require.Equal(t, "bench-job", name)

	text := string(combined)
	require.Contains(t, text, "bench-job-eval-config")
	require.Contains(t, text, "VLLM_MODEL_ENDPOINT")
	require.Contains(t, text, "http://svc:8000")
	require.Contains(t, text, configMapMountPath)
	// The Job must be the first document so the tracker records it as
	// the primary resource, not the ConfigMap.
	require.Less(t, strings.Index(text, "kind: Job"), strings.Index(text, "kind: ConfigMap"))
}

func TestComposeSubmissionRejectsMissingContainer(t *testing.T) {
	const bad = `
apiVersion: batch/v1
kind: Job
metadata:
  name: bad-job
spec:
  template:
    spec: {}
`
	_, _, err := composeSubmission([]byte(bad), []byte(`{}`), "http://svc:8000", "")
	require.Error(t, err)
}

package manifeststore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

const validJob = `
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
`

func TestParseJob(t *testing.T) {
	job, err := Parse(FileTypeJob, []byte(validJob))
	require.NoError(t, err)
	require.NotNil(t, job)
}

func TestParseJobRejectsWrongKind(t *testing.T) {
	_, err := Parse(FileTypeJob, []byte("apiVersion: v1\nkind: Service\nmetadata:\n  name: svc\n"))
	require.Error(t, err)
	require.Equal(t, core.KindInvalid, core.KindOf(err))
}

func TestParseConfig(t *testing.T) {
	cfg, err := Parse(FileTypeConfig, []byte(`{"batch_size": 8}`))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	_, err = Parse(FileTypeConfig, []byte("{not json"))
	require.Error(t, err)
	require.Equal(t, core.KindInvalid, core.KindOf(err))
}

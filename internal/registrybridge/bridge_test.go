package registrybridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/registrybridge/registry"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourceclient"
)

const sampleTemplate = `apiVersion: v1
kind: Application
metadata:
  name: {{.RunID}}
global:
  model_name: {{.ModelName}}
  model_version: {{.ModelVersion}}
  experiment_id: {{.ExperimentID}}
  run_timestamp: {{.Timestamp}}
`

func newTestBridge(t *testing.T, reg *registry.Fake) (*Bridge, *sourceclient.Fake) {
	t.Helper()
	source := sourceclient.NewFake()
	source.Seed("acme", "bench", "main", "template/"+TemplateFileName, []byte(sampleTemplate))
	creds := sourceclient.StaticCredentials{Token: "tok"}
	cfg := Config{Owner: "acme", Repo: "bench", Ref: "main", TemplateDir: "template", ApplicationsDir: "applications"}
	bridge := New(reg, source, creds, cfg, core.SystemClock{}, core.NopLogger{}, nil)
	return bridge, source
}

// TestTickMirrorsNewRunOnce covers the mirror path: a model
// version not yet mirrored is rendered from the template and committed
// at applications/{run_id}.yaml, and a repeated tick does not
// re-render it (state is derived from the source repo itself).
func TestTickMirrorsNewRunOnce(t *testing.T) {
	reg := &registry.Fake{Versions: []registry.ModelVersion{
		{RunID: "run-1", ExperimentID: "exp-1", ModelName: "llama-3", ModelVersion: "v1", Timestamp: time.Unix(0, 0)},
	}}
	bridge, source := newTestBridge(t, reg)

	created, updated, err := bridge.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, 0, updated)

	content, _, err := source.GetFile(context.Background(), "acme", "bench", "main", "applications/run-1.yaml", "tok")
	require.NoError(t, err)
	require.Contains(t, string(content), "model_name: llama-3")
	require.Contains(t, string(content), "name: run-1")

	created, updated, err = bridge.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, created)
	require.Equal(t, 0, updated)
}

// TestTickUpdatesGlobalBlockInPlace covers the update path: a
// changed model_name/model_version rewrites only the global block of
// an already-mirrored manifest.
func TestTickUpdatesGlobalBlockInPlace(t *testing.T) {
	reg := &registry.Fake{Versions: []registry.ModelVersion{
		{RunID: "run-2", ExperimentID: "exp-2", ModelName: "llama-3", ModelVersion: "v1", Timestamp: time.Unix(0, 0)},
	}}
	bridge, source := newTestBridge(t, reg)

	_, _, err := bridge.tick(context.Background())
	require.NoError(t, err)

	reg.Versions[0].ModelVersion = "v2"
	created, updated, err := bridge.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, created)
	require.Equal(t, 1, updated)

	content, _, err := source.GetFile(context.Background(), "acme", "bench", "main", "applications/run-2.yaml", "tok")
	require.NoError(t, err)
	require.Contains(t, string(content), "model_version: v2")
	require.Contains(t, string(content), "name: run-2")
}

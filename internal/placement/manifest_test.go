package placement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildManifestIncludesGPUResourceAndModelArgs(t *testing.T) {
	candidate := ConfigFingerprint{
		ModelName:        "microsoft/DialoGPT-medium",
		GPUResourceType:  "nvidia.com/gpu",
		GPUResourceCount: 1,
		ServedModelName:  "dialo",
	}
	manifest, err := BuildManifest(candidate, ManifestOptions{Name: "bench-vllm", Namespace: "default"})
	require.NoError(t, err)

	text := string(manifest)
	require.Contains(t, text, "kind: Deployment")
	require.Contains(t, text, "kind: Service")
	require.Contains(t, text, "microsoft/DialoGPT-medium")
	require.Contains(t, text, "nvidia.com/gpu")
	require.Contains(t, text, "--served-model-name")
}

func TestBuildManifestRequiresName(t *testing.T) {
	_, err := BuildManifest(ConfigFingerprint{}, ManifestOptions{})
	require.Error(t, err)
}

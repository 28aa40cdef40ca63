package placement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/deploymenttracker"
)

// fakeTracker is a minimal Tracker stub over a fixed slice, enough to
// drive Admit's read-decide logic without a real Collection.
type fakeTracker struct {
	deployments []deploymenttracker.Deployment
}

func (f *fakeTracker) List(_ context.Context, filter func(deploymenttracker.Deployment) bool) ([]deploymenttracker.Deployment, error) {
	var out []deploymenttracker.Deployment
	for _, d := range f.deployments {
		if filter == nil || filter(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func dialoGPTFingerprint(model string) *deploymenttracker.Fingerprint {
	return &deploymenttracker.Fingerprint{
		ModelName:        model,
		GPUResourceType:  "nvidia.com/gpu",
		GPUResourceCount: 1,
	}
}

// TestAdmitReuse: an identical fingerprint to a running deployment
// yields REUSE with the existing id.
func TestAdmitReuse(t *testing.T) {
	tracker := &fakeTracker{deployments: []deploymenttracker.Deployment{
		{
			ID:          "existing-1",
			IsVLLM:      true,
			Status:      deploymenttracker.StatusRunning,
			Fingerprint: dialoGPTFingerprint("microsoft/DialoGPT-medium"),
		},
	}}
	engine := New(tracker, core.NopLogger{})

	result, err := engine.Admit(context.Background(), *dialoGPTFingerprint("microsoft/DialoGPT-medium"))
	require.NoError(t, err)
	require.Equal(t, DecisionReuse, result.Decision)
	require.Equal(t, "existing-1", result.ReusedID)
}

// TestAdmitMIGNonConflict: distinct MIG slice types coexist.
func TestAdmitMIGNonConflict(t *testing.T) {
	tracker := &fakeTracker{deployments: []deploymenttracker.Deployment{
		{
			ID:     "existing-1",
			IsVLLM: true,
			Status: deploymenttracker.StatusRunning,
			Fingerprint: &deploymenttracker.Fingerprint{
				ModelName:        "model-a",
				GPUResourceType:  "nvidia.com/mig-3g.20gb",
				GPUResourceCount: 1,
			},
		},
	}}
	engine := New(tracker, core.NopLogger{})

	result, err := engine.Admit(context.Background(), deploymenttracker.Fingerprint{
		ModelName:        "model-b",
		GPUResourceType:  "nvidia.com/mig-4g.24gb",
		GPUResourceCount: 1,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionAdmit, result.Decision)
}

// TestAdmitGPUConflictEviction: the same exact GPU resource type with
// a different model yields EVICT_AND_ADMIT naming the conflicting
// existing deployment as a victim.
func TestAdmitGPUConflictEviction(t *testing.T) {
	tracker := &fakeTracker{deployments: []deploymenttracker.Deployment{
		{
			ID:          "existing-1",
			IsVLLM:      true,
			Status:      deploymenttracker.StatusRunning,
			Fingerprint: dialoGPTFingerprint("model-a"),
		},
	}}
	engine := New(tracker, core.NopLogger{})

	result, err := engine.Admit(context.Background(), *dialoGPTFingerprint("model-b"))
	require.NoError(t, err)
	require.Equal(t, DecisionEvictAndAdmit, result.Decision)
	require.Equal(t, []string{"existing-1"}, result.VictimIDs)
}

// TestAdmitIgnoresTerminalDeployments ensures a completed/failed/deleted
// VLLMDeployment never participates in reuse or conflict decisions.
func TestAdmitIgnoresTerminalDeployments(t *testing.T) {
	tracker := &fakeTracker{deployments: []deploymenttracker.Deployment{
		{
			ID:          "gone",
			IsVLLM:      true,
			Status:      deploymenttracker.StatusDeleted,
			Fingerprint: dialoGPTFingerprint("model-a"),
		},
	}}
	engine := New(tracker, core.NopLogger{})

	result, err := engine.Admit(context.Background(), *dialoGPTFingerprint("model-a"))
	require.NoError(t, err)
	require.Equal(t, DecisionAdmit, result.Decision)
}

// TestAdmitIdempotence: admitting the same fingerprint twice yields
// REUSE the second time with the id returned by the first.
func TestAdmitIdempotence(t *testing.T) {
	tracker := &fakeTracker{}
	engine := New(tracker, core.NopLogger{})

	fp := *dialoGPTFingerprint("model-a")
	first, err := engine.Admit(context.Background(), fp)
	require.NoError(t, err)
	require.Equal(t, DecisionAdmit, first.Decision)

	tracker.deployments = append(tracker.deployments, deploymenttracker.Deployment{
		ID:          "first-id",
		IsVLLM:      true,
		Status:      deploymenttracker.StatusRunning,
		Fingerprint: &fp,
	})

	second, err := engine.Admit(context.Background(), fp)
	require.NoError(t, err)
	require.Equal(t, DecisionReuse, second.Decision)
	require.Equal(t, "first-id", second.ReusedID)
}

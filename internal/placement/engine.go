package placement

import (
	"context"
	"sync"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/deploymenttracker"
)

// Decision is the outcome of Admit.
type Decision string

const (
	DecisionReuse         Decision = "reuse"
	DecisionAdmit         Decision = "admit"
	DecisionEvictAndAdmit Decision = "evict_and_admit"
)

// AdmitResult carries the decision plus whichever IDs are relevant to
// it: the reused Deployment's ID, or the victims to evict before the
// candidate is applied.
type AdmitResult struct {
	Decision  Decision
	ReusedID  string
	VictimIDs []string
}

// Tracker is the subset of deploymenttracker.Tracker the Placement
// Engine needs: list existing VLLMDeployments.
type Tracker interface {
	List(ctx context.Context, filter func(deploymenttracker.Deployment) bool) ([]deploymenttracker.Deployment, error)
}

// Engine is the Placement Engine. Admission is serialized globally
// with a single mutex held for the read-decide window, so reuse and
// conflict decisions are taken against a consistent snapshot of the
// vLLM set.
type Engine struct {
	tracker Tracker
	logger  core.Logger
	mu      sync.Mutex
}

// New builds an Engine over tracker.
func New(tracker Tracker, logger core.Logger) *Engine {
	return &Engine{tracker: tracker, logger: logger}
}

// FromFingerprint converts the persisted tracker shape into the
// canonical comparison shape.
func FromFingerprint(f *deploymenttracker.Fingerprint) ConfigFingerprint {
	if f == nil {
		return ConfigFingerprint{}
	}
	return ConfigFingerprint{
		ModelName:            f.ModelName,
		GPUResourceType:      f.GPUResourceType,
		GPUResourceCount:     f.GPUResourceCount,
		GPUMemoryUtilization: f.GPUMemoryUtilization,
		MaxNumSeqs:           f.MaxNumSeqs,
		BlockSize:            f.BlockSize,
		TensorParallelSize:   f.TensorParallelSize,
		PipelineParallelSize: f.PipelineParallelSize,
		TrustRemoteCode:      f.TrustRemoteCode,
		DType:                f.DType,
		MaxModelLen:          f.MaxModelLen,
		Quantization:         f.Quantization,
		ServedModelName:      f.ServedModelName,
		AdditionalArgs:       f.AdditionalArgs,
	}
}

// Admit runs the admission algorithm against every pending/running
// VLLMDeployment:
//
//  1. Load all VLLMDeployments in states {pending, running}.
//  2. If any existing has an equal ConfigFingerprint -> REUSE(existing_id).
//  3. Compute GPU conflicts.
//  4. No conflicts -> ADMIT.
//  5. Else -> EVICT_AND_ADMIT(victims).
//
// Admit itself never deletes anything; the caller issues Delete for
// each victim and waits for `deleted` before applying the candidate;
// eviction is single shot and never retried here.
func (e *Engine) Admit(ctx context.Context, candidate deploymenttracker.Fingerprint) (AdmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.tracker.List(ctx, func(d deploymenttracker.Deployment) bool {
		return d.IsVLLM && d.Status.IsNonTerminal()
	})
	if err != nil {
		return AdmitResult{}, core.Wrap(core.KindUpstream, "placement_list_failed", "listing existing vLLM deployments failed", err)
	}

	candidateFP := FromFingerprint(&candidate)

	for _, d := range existing {
		if d.Fingerprint == nil {
			continue
		}
		if FromFingerprint(d.Fingerprint).Equal(candidateFP) {
			return AdmitResult{Decision: DecisionReuse, ReusedID: d.ID}, nil
		}
	}

	var victims []string
	for _, d := range existing {
		if d.Fingerprint == nil {
			continue
		}
		if GPUConflicts(FromFingerprint(d.Fingerprint), candidateFP) {
			victims = append(victims, d.ID)
		}
	}

	if len(victims) == 0 {
		return AdmitResult{Decision: DecisionAdmit}, nil
	}
	return AdmitResult{Decision: DecisionEvictAndAdmit, VictimIDs: victims}, nil
}

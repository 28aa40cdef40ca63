package evalscheduler

import (
	"context"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
)

// Runner executes the same Job+Config composition the Sweeper fires for
// scheduled Tasks, but synchronously and without a scheduled_at delay —
// backing `POST /run`.
type Runner struct {
	manifests *manifeststore.Store
	submit    TrackerSubmit
	namespace string
}

// NewRunner builds a Runner over the same Manifest Store and Tracker
// submit function a Sweeper uses, so the synchronous and delayed paths
// stay behaviorally identical.
func NewRunner(manifests *manifeststore.Store, submit TrackerSubmit, namespace string) *Runner {
	return &Runner{manifests: manifests, submit: submit, namespace: namespace}
}

// Run composes and submits req immediately, returning the resulting
// Deployment ID.
func (r *Runner) Run(ctx context.Context, req Request) (string, error) {
	jobContent, err := r.manifests.EffectiveContent(ctx, req.JobFileID, req.ModifiedJobID)
	if err != nil {
		return "", err
	}

	var configContent []byte
	if req.ConfigFileID != "" {
		configContent, err = r.manifests.EffectiveContent(ctx, req.ConfigFileID, req.ModifiedConfigID)
		if err != nil {
			return "", err
		}
	} else {
		configContent = []byte("{}")
	}

	combined, _, err := composeSubmission(jobContent, configContent, req.ModelEndpoint, req.Name)
	if err != nil {
		return "", err
	}

	return r.submit(ctx, combined, r.namespace)
}

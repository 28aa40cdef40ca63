package deploymenttracker

import (
	"fmt"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// NotFound is returned when a Deployment lookup fails.
type NotFound struct {
	ID string
}

func (e *NotFound) Error() string { return fmt.Sprintf("deployment %q not found", e.ID) }

func notFoundError(id string) error {
	return core.Wrap(core.KindNotFound, "deployment_not_found", "deployment not found", &NotFound{ID: id})
}

// InvalidManifest is returned when a submitted YAML cannot be decoded
// into at least one resource document.
type InvalidManifest struct {
	Reason error
}

func (e *InvalidManifest) Error() string { return fmt.Sprintf("invalid manifest: %s", e.Reason) }
func (e *InvalidManifest) Unwrap() error { return e.Reason }

func invalidManifestError(reason error) error {
	return core.Wrap(core.KindInvalid, "invalid_manifest", "manifest did not decode into at least one resource", &InvalidManifest{Reason: reason})
}

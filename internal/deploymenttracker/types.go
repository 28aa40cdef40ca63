// Package deploymenttracker owns Deployments and VLLMDeployments: it
// submits applies through the Cluster Gateway, persists the resulting
// state, and reconciles status on a tick.
package deploymenttracker

import "time"

// Status is the Deployment state-lattice value.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDeleted   Status = "deleted"
)

// PrimaryResourceType is the kind of the first resource in a multi-
// document apply.
type PrimaryResourceType string

const (
	ResourceJob        PrimaryResourceType = "job"
	ResourceDeployment PrimaryResourceType = "deployment"
	ResourceService    PrimaryResourceType = "service"
	ResourceConfigMap  PrimaryResourceType = "configmap"
	ResourceSecret     PrimaryResourceType = "secret"
	ResourceUnknown    PrimaryResourceType = "unknown"
)

// Deployment is a tracked bundle of cluster resources created from one
// apply request.
type Deployment struct {
	ID                  string              `json:"id"`
	YAMLContent         []byte              `json:"yaml_content"`
	Namespace           string              `json:"namespace"`
	PrimaryResourceType PrimaryResourceType `json:"primary_resource_type"`
	PrimaryResourceName string              `json:"primary_resource_name"`
	Status              Status              `json:"status"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	FailureCount        int                 `json:"failure_count"`
	LastError           string              `json:"last_error,omitempty"`
	// IsVLLM marks a Deployment as a VLLMDeployment specialization
	// so the reconciler applies the stricter vLLM failure
	// budget without needing a second document identity.
	IsVLLM bool `json:"is_vllm,omitempty"`
	// Fingerprint is populated only when IsVLLM is true.
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
}

func (d Deployment) DocID() string           { return d.ID }
func (d Deployment) DocUpdatedAt() time.Time { return d.UpdatedAt }

// Fingerprint is the persisted shape of placement.ConfigFingerprint;
// kept as a plain struct here (rather than importing internal/placement)
// so deploymenttracker has no dependency on the placement package —
// internal/placement depends on this type instead, since the Placement
// Engine gates deployments before they reach this tracker, not the
// other way around.
type Fingerprint struct {
	ModelName            string            `json:"model_name"`
	GPUResourceType      string            `json:"gpu_resource_type"`
	GPUResourceCount     int               `json:"gpu_resource_count"`
	GPUMemoryUtilization float64           `json:"gpu_memory_utilization"`
	MaxNumSeqs           int               `json:"max_num_seqs"`
	BlockSize            int               `json:"block_size"`
	TensorParallelSize   int               `json:"tensor_parallel_size"`
	PipelineParallelSize int               `json:"pipeline_parallel_size"`
	TrustRemoteCode      bool              `json:"trust_remote_code"`
	DType                string            `json:"dtype"`
	MaxModelLen          int               `json:"max_model_len"`
	Quantization         string            `json:"quantization"`
	ServedModelName      string            `json:"served_model_name"`
	AdditionalArgs       map[string]string `json:"additional_args,omitempty"`
}

// IsNonTerminal reports whether status still participates in
// reconciliation and placement-conflict checks.
func (s Status) IsNonTerminal() bool {
	return s == StatusPending || s == StatusRunning
}

// IsTerminal reports whether status is absorbing except for the
// universal transition to `deleted`.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeleted
}

// ValidTransition reports whether moving from `from` to `to` is allowed
// by the state lattice:
// pending->running->completed, pending|running->failed, any->deleted.
func ValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if to == StatusDeleted {
		return from != StatusDeleted
	}
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		// completed, failed, deleted are absorbing except -> deleted,
		// already handled above.
		return false
	}
}

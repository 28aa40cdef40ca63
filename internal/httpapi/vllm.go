package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/deploymenttracker"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/placement"
)

// VLLMController serves the vLLM-specific deploy surface: Placement
// Engine admission followed by manifest generation and submission.
type VLLMController struct {
	engine  *placement.Engine
	tracker *deploymenttracker.Tracker
	// evictionTimeout bounds how long an EVICT_AND_ADMIT request may
	// spend deleting victims before the submission is rejected.
	evictionTimeout time.Duration
	namespace       string
	logger          core.Logger
}

// NewVLLMController builds a VLLMController.
func NewVLLMController(engine *placement.Engine, tracker *deploymenttracker.Tracker, namespace string, evictionTimeout time.Duration, logger core.Logger) *VLLMController {
	return &VLLMController{engine: engine, tracker: tracker, namespace: namespace, evictionTimeout: evictionTimeout, logger: logger}
}

type vllmDeployRequest struct {
	ModelName            string            `json:"model_name" validate:"required"`
	GPUResourceType      string            `json:"gpu_resource_type" validate:"required"`
	GPUResourceCount     int               `json:"gpu_resource_count" validate:"required,min=1"`
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
	DeploymentName       string            `json:"deployment_name" validate:"required"`
	Image                string            `json:"image"`
}

func (r vllmDeployRequest) toFingerprint() deploymenttracker.Fingerprint {
	return deploymenttracker.Fingerprint{
		ModelName:            r.ModelName,
		GPUResourceType:      r.GPUResourceType,
		GPUResourceCount:     r.GPUResourceCount,
		GPUMemoryUtilization: r.GPUMemoryUtilization,
		MaxNumSeqs:           r.MaxNumSeqs,
		BlockSize:            r.BlockSize,
		TensorParallelSize:   r.TensorParallelSize,
		PipelineParallelSize: r.PipelineParallelSize,
		TrustRemoteCode:      r.TrustRemoteCode,
		DType:                r.DType,
		MaxModelLen:          r.MaxModelLen,
		Quantization:         r.Quantization,
		ServedModelName:      r.ServedModelName,
		AdditionalArgs:       r.AdditionalArgs,
	}
}

type vllmDeployResponse struct {
	Decision   placement.Decision            `json:"decision"`
	Deployment *deploymenttracker.Deployment `json:"deployment,omitempty"`
	ReusedID   string                        `json:"reused_id,omitempty"`
	EvictedIDs []string                      `json:"evicted_ids,omitempty"`
}

// DeployHandler handles the vLLM variant of `POST /deploy`: runs Admit,
// evicts any conflicting deployments, builds the serving manifest, and
// submits it.
func (c *VLLMController) DeployHandler(w http.ResponseWriter, r *http.Request) {
	var req vllmDeployRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	fingerprint := req.toFingerprint()
	result, err := c.engine.Admit(r.Context(), fingerprint)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}

	if result.Decision == placement.DecisionReuse {
		existing, err := c.tracker.Get(r.Context(), result.ReusedID)
		if err != nil {
			httputils.WriteError(w, err)
			return
		}
		httputils.WriteJSON(w, http.StatusOK, vllmDeployResponse{Decision: result.Decision, Deployment: &existing, ReusedID: result.ReusedID})
		return
	}

	if len(result.VictimIDs) > 0 {
		evictCtx, cancel := context.WithTimeout(r.Context(), c.evictionTimeout)
		defer cancel()
		for _, victimID := range result.VictimIDs {
			if err := c.tracker.Delete(evictCtx, victimID); err != nil {
				httputils.WriteError(w, err)
				return
			}
		}
	}

	manifest, err := placement.BuildManifest(placement.FromFingerprint(&fingerprint), placement.ManifestOptions{
		Name:      req.DeploymentName,
		Namespace: c.namespace,
		Image:     req.Image,
	})
	if err != nil {
		httputils.WriteError(w, err)
		return
	}

	deployment, err := c.tracker.Submit(r.Context(), manifest, c.namespace, &fingerprint)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}

	httputils.WriteJSON(w, http.StatusCreated, vllmDeployResponse{
		Decision:   result.Decision,
		Deployment: &deployment,
		EvictedIDs: result.VictimIDs,
	})
}

// ListDeploymentsHandler handles GET /deployments for vLLM deployments
// only.
func (c *VLLMController) ListDeploymentsHandler(w http.ResponseWriter, r *http.Request) {
	deployments, err := c.tracker.List(r.Context(), func(d deploymenttracker.Deployment) bool {
		return d.IsVLLM && d.Status != deploymenttracker.StatusDeleted
	})
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, deployments)
}

// DeleteDeploymentHandler handles DELETE /deployments/{id}.
func (c *VLLMController) DeleteDeploymentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.tracker.Delete(r.Context(), id); err != nil {
		httputils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

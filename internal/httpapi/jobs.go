package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/deploymenttracker"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
)

// JobsController serves the generic Deploy/Delete surface and job
// observability endpoints backed by the Deployment Tracker.
type JobsController struct {
	tracker *deploymenttracker.Tracker
	// defaultTailLines is used when a logs request does not carry its
	// own tail parameter.
	defaultTailLines int64
	logger           core.Logger
}

// NewJobsController builds a JobsController.
func NewJobsController(tracker *deploymenttracker.Tracker, defaultTailLines int64, logger core.Logger) *JobsController {
	return &JobsController{tracker: tracker, defaultTailLines: defaultTailLines, logger: logger}
}

type deployRequest struct {
	YAMLContent string `json:"yaml_content" validate:"required"`
	Namespace   string `json:"namespace" validate:"required"`
}

// DeployHandler handles POST /deploy: applies arbitrary YAML and returns
// the resulting Deployment descriptor.
func (c *JobsController) DeployHandler(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	deployment, err := c.tracker.Submit(r.Context(), []byte(req.YAMLContent), req.Namespace, nil)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusCreated, deployment)
}

type deleteRequest struct {
	YAMLContent string `json:"yaml_content" validate:"required"`
	Namespace   string `json:"namespace" validate:"required"`
}

// DeleteHandler handles POST /delete: deletes the resources described by
// yaml_content, symmetric with DeployHandler.
func (c *JobsController) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	// The Tracker's Delete operates by Deployment ID using its stored
	// YAML, so a symmetric-by-manifest delete first locates the tracked
	// Deployment whose YAML and namespace match, rather than re-deriving
	// cluster calls independently of the tracked record.
	deployments, err := c.tracker.List(r.Context(), func(d deploymenttracker.Deployment) bool {
		return d.Namespace == req.Namespace && string(d.YAMLContent) == req.YAMLContent && d.Status != deploymenttracker.StatusDeleted
	})
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	if len(deployments) == 0 {
		httputils.WriteError(w, core.NewError(core.KindNotFound, "deployment_not_found", "no tracked deployment matches this manifest"))
		return
	}
	for _, d := range deployments {
		if err := c.tracker.Delete(r.Context(), d.ID); err != nil {
			httputils.WriteError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeploymentsHandler handles GET /deployments: every non-deleted
// Deployment.
func (c *JobsController) ListDeploymentsHandler(w http.ResponseWriter, r *http.Request) {
	deployments, err := c.tracker.List(r.Context(), func(d deploymenttracker.Deployment) bool {
		return d.Status != deploymenttracker.StatusDeleted
	})
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, deployments)
}

// JobStatusHandler handles GET /jobs/{name}/status.
func (c *JobsController) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["name"]
	deployment, err := c.tracker.Get(r.Context(), id)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, deployment)
}

// JobLogsHandler handles GET /jobs/{name}/logs, supporting tail, follow,
// and since query parameters.
func (c *JobsController) JobLogsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["name"]

	tailLines := c.defaultTailLines
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputils.WriteError(w, core.NewError(core.KindInvalid, "invalid_tail", "tail must be an integer"))
			return
		}
		tailLines = n
	}

	follow := r.URL.Query().Get("follow") == "true"

	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputils.WriteError(w, core.NewError(core.KindInvalid, "invalid_since", "since must be RFC3339"))
			return
		}
		since = &t
	}

	stream, err := c.tracker.GetLogs(r.Context(), id, tailLines, follow, since)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok && follow {
		buf := make([]byte, 4096)
		for {
			n, readErr := stream.Read(buf)
			if n > 0 {
				if _, writeErr := w.Write(buf[:n]); writeErr != nil {
					return
				}
				flusher.Flush()
			}
			if readErr != nil {
				return
			}
		}
	}
	io.Copy(w, stream)
}

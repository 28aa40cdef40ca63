package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/evalscheduler"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
)

// EvaluationController serves the Evaluation Scheduler's delayed and
// synchronous run endpoints.
type EvaluationController struct {
	scheduler *evalscheduler.Scheduler
	runner    *evalscheduler.Runner
	logger    core.Logger
}

// NewEvaluationController builds an EvaluationController.
func NewEvaluationController(scheduler *evalscheduler.Scheduler, runner *evalscheduler.Runner, logger core.Logger) *EvaluationController {
	return &EvaluationController{scheduler: scheduler, runner: runner, logger: logger}
}

type evaluationRequest struct {
	ProjectID        string `json:"project_id" validate:"required"`
	BenchmarkType    string `json:"benchmark_type" validate:"required"`
	JobFileID        string `json:"job_file_id" validate:"required"`
	ConfigFileID     string `json:"config_file_id"`
	ModifiedJobID    string `json:"modified_job_id"`
	ModifiedConfigID string `json:"modified_config_id"`
	ModelEndpoint    string `json:"model_endpoint" validate:"required"`
	Name             string `json:"name" validate:"required"`
}

func (r evaluationRequest) toRequest() evalscheduler.Request {
	return evalscheduler.Request{
		ProjectID:        r.ProjectID,
		BenchmarkType:    r.BenchmarkType,
		JobFileID:        r.JobFileID,
		ConfigFileID:     r.ConfigFileID,
		ModifiedJobID:    r.ModifiedJobID,
		ModifiedConfigID: r.ModifiedConfigID,
		ModelEndpoint:    r.ModelEndpoint,
		Name:             r.Name,
	}
}

// ScheduleHandler handles POST /evaluate: schedules a future evaluation
// run and returns the task id and scheduled_at.
func (c *EvaluationController) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	task, err := c.scheduler.Schedule(r.Context(), req.toRequest())
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusCreated, task)
}

// CancelHandler handles POST /evaluate/{id}/cancel.
func (c *EvaluationController) CancelHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := c.scheduler.Cancel(r.Context(), id)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, task)
}

type runResponse struct {
	DeploymentID string `json:"deployment_id"`
}

// RunHandler handles POST /run: the same composition as Schedule, fired
// immediately instead of after evaluation_delay.
func (c *EvaluationController) RunHandler(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	deploymentID, err := c.runner.Run(r.Context(), req.toRequest())
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusCreated, runResponse{DeploymentID: deploymentID})
}

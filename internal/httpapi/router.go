package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DeployerRouterControllers bundles the controllers the
// benchmark-deployer binary exposes.
type DeployerRouterControllers struct {
	Projects   *ProjectsController
	Jobs       *JobsController
	Terminal   *TerminalController
	Evaluation *EvaluationController
	Health     *HealthController
}

// NewDeployerRouter builds the route table for benchmark-deployer.
func NewDeployerRouter(c DeployerRouterControllers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/projects", c.Projects.CreateProjectHandler).Methods(http.MethodPost)
	r.HandleFunc("/projects", c.Projects.ListProjectsHandler).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}", c.Projects.GetProjectHandler).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}", c.Projects.UpdateProjectHandler).Methods(http.MethodPut)
	r.HandleFunc("/projects/{id}", c.Projects.DeleteProjectHandler).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{id}/sync", c.Projects.SyncProjectHandler).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/files", c.Projects.ListFilesHandler).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}/modified-files", c.Projects.CreateModifiedFileHandler).Methods(http.MethodPost)

	r.HandleFunc("/deploy", c.Jobs.DeployHandler).Methods(http.MethodPost)
	r.HandleFunc("/delete", c.Jobs.DeleteHandler).Methods(http.MethodPost)
	r.HandleFunc("/deployments", c.Jobs.ListDeploymentsHandler).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}/status", c.Jobs.JobStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}/logs", c.Jobs.JobLogsHandler).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}/terminal", c.Terminal.CreateSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/terminal/{id}", c.Terminal.AttachHandler)

	r.HandleFunc("/evaluate", c.Evaluation.ScheduleHandler).Methods(http.MethodPost)
	r.HandleFunc("/evaluate/{id}/cancel", c.Evaluation.CancelHandler).Methods(http.MethodPost)
	r.HandleFunc("/run", c.Evaluation.RunHandler).Methods(http.MethodPost)

	r.HandleFunc("/health", c.Health.Handler).Methods(http.MethodGet)

	return r
}

// VLLMRouterControllers bundles the controllers the benchmark-vllm
// binary exposes.
type VLLMRouterControllers struct {
	VLLM   *VLLMController
	Health *HealthController
}

// NewVLLMRouter builds the route table for benchmark-vllm.
func NewVLLMRouter(c VLLMRouterControllers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/deploy", c.VLLM.DeployHandler).Methods(http.MethodPost)
	r.HandleFunc("/deployments", c.VLLM.ListDeploymentsHandler).Methods(http.MethodGet)
	r.HandleFunc("/deployments/{id}", c.VLLM.DeleteDeploymentHandler).Methods(http.MethodDelete)
	r.HandleFunc("/health", c.Health.Handler).Methods(http.MethodGet)

	return r
}

// BridgeRouterControllers bundles the controllers the registry-bridge
// binary exposes.
type BridgeRouterControllers struct {
	Health   *HealthController
	Registry prometheus.Gatherer
}

// NewBridgeRouter builds the route table for registry-bridge: only
// health and metrics.
func NewBridgeRouter(c BridgeRouterControllers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", c.Health.Handler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// MountMetrics attaches the /metrics endpoint to an existing router,
// used by benchmark-deployer and benchmark-vllm (registry-bridge wires
// it directly into NewBridgeRouter since metrics are its only other
// surface besides health).
func MountMetrics(r *mux.Router, reg prometheus.Gatherer) {
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

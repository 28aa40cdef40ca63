package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourcepoller"
)

// ProjectsController serves the Manifest Store's HTTP surface: Project
// CRUD, forced sync, file listing, and modified-file creation.
type ProjectsController struct {
	store   *manifeststore.Store
	poller  *sourcepoller.Poller
	logger  core.Logger
	baseCtx context.Context
}

// NewProjectsController builds a ProjectsController. baseCtx is the
// process-lifetime context (cancelled on shutdown) used for work that
// must outlive a single request: per-Project poll loops started from a
// handler, and a forced sync's detached tick. Using the request's own
// context for either would cancel them the instant the handler returns
// (net/http cancels r.Context() on response completion).
func NewProjectsController(baseCtx context.Context, store *manifeststore.Store, poller *sourcepoller.Poller, logger core.Logger) *ProjectsController {
	return &ProjectsController{store: store, poller: poller, logger: logger, baseCtx: baseCtx}
}

type createProjectRequest struct {
	Name           string `json:"name" validate:"required"`
	SourceOwner    string `json:"source_owner" validate:"required"`
	SourceRepo     string `json:"source_repo" validate:"required"`
	SourceRef      string `json:"source_ref" validate:"required"`
	ConfigFolder   string `json:"config_folder" validate:"required"`
	JobFolder      string `json:"job_folder" validate:"required"`
	PollInterval   int    `json:"poll_interval_seconds" validate:"required,min=10"`
	CredentialsRef string `json:"credentials_ref"`
}

// CreateProjectHandler handles POST /projects.
func (c *ProjectsController) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	project, err := c.store.CreateProject(r.Context(), manifeststore.Project{
		Name:           req.Name,
		SourceOwner:    req.SourceOwner,
		SourceRepo:     req.SourceRepo,
		SourceRef:      req.SourceRef,
		ConfigFolder:   req.ConfigFolder,
		JobFolder:      req.JobFolder,
		PollInterval:   time.Duration(req.PollInterval) * time.Second,
		CredentialsRef: req.CredentialsRef,
	})
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	c.poller.StartProject(c.baseCtx, project)
	httputils.WriteJSON(w, http.StatusCreated, project)
}

// GetProjectHandler handles GET /projects/{id}.
func (c *ProjectsController) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	project, err := c.store.GetProject(r.Context(), id)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, project)
}

// ListProjectsHandler handles GET /projects.
func (c *ProjectsController) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := c.store.ListProjects(r.Context())
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, projects)
}

type updateProjectRequest struct {
	Name           *string `json:"name"`
	ConfigFolder   *string `json:"config_folder"`
	JobFolder      *string `json:"job_folder"`
	PollInterval   *int    `json:"poll_interval_seconds"`
	CredentialsRef *string `json:"credentials_ref"`
}

// UpdateProjectHandler handles PUT /projects/{id}.
func (c *ProjectsController) UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateProjectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	updated, err := c.store.UpdateProject(r.Context(), id, func(p *manifeststore.Project) {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.ConfigFolder != nil {
			p.ConfigFolder = *req.ConfigFolder
		}
		if req.JobFolder != nil {
			p.JobFolder = *req.JobFolder
		}
		if req.PollInterval != nil {
			p.PollInterval = time.Duration(*req.PollInterval) * time.Second
		}
		if req.CredentialsRef != nil {
			p.CredentialsRef = *req.CredentialsRef
		}
	})
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	c.poller.StopProject(id)
	c.poller.StartProject(c.baseCtx, updated)
	httputils.WriteJSON(w, http.StatusOK, updated)
}

// DeleteProjectHandler handles DELETE /projects/{id}.
func (c *ProjectsController) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c.poller.StopProject(id)
	if err := c.store.DeleteProject(r.Context(), id); err != nil {
		httputils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncProjectHandler handles POST /projects/{id}/sync: forces an
// out-of-band poll tick.
func (c *ProjectsController) SyncProjectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	project, err := c.store.GetProject(r.Context(), id)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	go func() { _ = c.poller.Tick(c.baseCtx, project) }()
	w.WriteHeader(http.StatusAccepted)
}

// ListFilesHandler handles GET /projects/{id}/files, filterable by
// file_type and benchmark_type query parameters.
func (c *ProjectsController) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	filter := manifeststore.ListFilesFilter{
		FileType:      manifeststore.FileType(r.URL.Query().Get("file_type")),
		BenchmarkType: r.URL.Query().Get("benchmark_type"),
	}
	files, err := c.store.ListFiles(r.Context(), id, filter)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusOK, files)
}

type createModifiedFileRequest struct {
	OriginalFileID string `json:"original_file_id" validate:"required"`
	ModifiedName   string `json:"modified_name" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

type createModifiedFileResponse struct {
	manifeststore.ModifiedFile
	// LintWarning reports content that does not decode as the original
	// File's type. The write still succeeds; the store never refuses a
	// write based on lint.
	LintWarning string `json:"lint_warning,omitempty"`
}

// CreateModifiedFileHandler handles POST /projects/{id}/modified-files
// (409 on a duplicate name).
func (c *ProjectsController) CreateModifiedFileHandler(w http.ResponseWriter, r *http.Request) {
	var req createModifiedFileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	modified, err := c.store.CreateModifiedFile(r.Context(), req.OriginalFileID, req.ModifiedName, []byte(req.Content))
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	resp := createModifiedFileResponse{ModifiedFile: modified}
	if original, err := c.store.GetFile(r.Context(), req.OriginalFileID); err == nil {
		if _, lintErr := manifeststore.Parse(original.FileType, []byte(req.Content)); lintErr != nil {
			resp.LintWarning = lintErr.Error()
			c.logger.Warn("modified file content failed lint",
				core.StringField("original_file_id", req.OriginalFileID),
				core.StringField("modified_name", req.ModifiedName),
				core.ErrorLogField("error", lintErr),
			)
		}
	}
	httputils.WriteJSON(w, http.StatusCreated, resp)
}

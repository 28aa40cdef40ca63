package httpapi

import (
	"context"
	"net/http"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
)

// Pinger is the subset of *pgxpool.Pool HealthController depends on,
// kept narrow so tests substitute a fake instead of a real pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController backs `GET /health`: 200 iff the database is
// reachable.
type HealthController struct {
	db     Pinger
	logger core.Logger
}

// NewHealthController builds a HealthController.
func NewHealthController(db Pinger, logger core.Logger) *HealthController {
	return &HealthController{db: db, logger: logger}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Handler handles GET /health.
func (c *HealthController) Handler(w http.ResponseWriter, r *http.Request) {
	if err := c.db.Ping(r.Context()); err != nil {
		c.logger.Warn("health check failed", core.ErrorLogField("error", err))
		httputils.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	httputils.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

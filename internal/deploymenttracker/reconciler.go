package deploymenttracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// gvkFor maps a PrimaryResourceType to the GroupVersionKind GetStatus
// needs. Service/ConfigMap/Secret are never non-terminal long enough to
// reconcile meaningfully but are included for completeness.
func gvkFor(t PrimaryResourceType) schema.GroupVersionKind {
	switch t {
	case ResourceJob:
		return schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"}
	case ResourceDeployment:
		return schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}
	case ResourceService:
		return schema.GroupVersionKind{Version: "v1", Kind: "Service"}
	case ResourceConfigMap:
		return schema.GroupVersionKind{Version: "v1", Kind: "ConfigMap"}
	case ResourceSecret:
		return schema.GroupVersionKind{Version: "v1", Kind: "Secret"}
	default:
		return schema.GroupVersionKind{}
	}
}

// Metrics is the sweep-outcome counter the Reconciler reports, kept as
// an interface so internal/httpapi can wire a Prometheus-backed
// implementation without this package importing client_golang.
type Metrics interface {
	ObserveSweep(outcome string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveSweep(string) {}

// Reconciler runs the Deployment Tracker's background reconciliation
// loop every tick, capping concurrent
// GetStatus calls at concurrency in-flight.
type Reconciler struct {
	tracker     *Tracker
	clock       core.Clock
	logger      core.Logger
	interval    time.Duration
	concurrency int
	// pendingTimeout fails a Deployment still pending this long after
	// creation (env `DEPLOYMENT_TIMEOUT`); 0 disables the check.
	pendingTimeout time.Duration
	metrics        Metrics
}

// NewReconciler builds a Reconciler over tracker.
func NewReconciler(tracker *Tracker, clock core.Clock, logger core.Logger, interval time.Duration, concurrency int, pendingTimeout time.Duration, metrics Metrics) *Reconciler {
	if concurrency <= 0 {
		concurrency = 16
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Reconciler{
		tracker:        tracker,
		clock:          clock,
		logger:         logger,
		interval:       interval,
		concurrency:    concurrency,
		pendingTimeout: pendingTimeout,
		metrics:        metrics,
	}
}

// Run blocks, ticking until ctx is cancelled. Each sweep is single
// in-flight: Run never starts a new sweep before the
// previous one finishes.
func (r *Reconciler) Run(ctx context.Context) {
	timer := r.clock.After(r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer:
		}
		r.sweep(ctx)
		timer = r.clock.After(r.interval)
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	deployments, err := r.tracker.List(ctx, func(d Deployment) bool { return d.Status.IsNonTerminal() })
	if err != nil {
		r.logger.Error("reconciler: list deployments failed", core.ErrorLogField("error", err))
		return
	}

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, d := range deployments {
		d := d
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.reconcileOne(ctx, d)
		}()
	}
	wg.Wait()
}

func (r *Reconciler) reconcileOne(ctx context.Context, d Deployment) {
	gvk := gvkFor(d.PrimaryResourceType)
	if gvk.Kind == "" {
		return
	}

	if d.Status == StatusPending && r.pendingTimeout > 0 && r.clock.Now().Sub(d.CreatedAt) > r.pendingTimeout {
		r.metrics.ObserveSweep("pending_timeout")
		_, err := r.tracker.deployments.CompareAndSwap(ctx, d.ID, func(cur Deployment) (Deployment, error) {
			if cur.Status != StatusPending {
				return cur, nil
			}
			cur.Status = StatusFailed
			cur.LastError = "timed out waiting for the workload to start"
			cur.UpdatedAt = r.clock.Now()
			return cur, nil
		})
		if err != nil {
			r.logger.Warn("reconciler: pending-timeout write failed",
				core.StringField("deployment_id", d.ID),
				core.ErrorLogField("error", err),
			)
		}
		return
	}

	status, err := r.tracker.gateway.GetStatus(ctx, gvk, d.Namespace, d.PrimaryResourceName)
	if err != nil {
		// Observation failure: log and keep state. Only a
		// resource-reported failure advances the Deployment to failed.
		r.logger.Warn("reconciler: observation failed",
			core.StringField("deployment_id", d.ID),
			core.ErrorLogField("error", err),
		)
		r.metrics.ObserveSweep("observation_failed")
		return
	}

	next, podFailed := r.nextStatus(d, status)
	r.metrics.ObserveSweep("observed")

	_, err = r.tracker.deployments.CompareAndSwap(ctx, d.ID, func(cur Deployment) (Deployment, error) {
		if cur.Status != d.Status {
			// Changed since we read it (e.g. user deleted concurrently);
			// skip this write rather than clobbering it.
			return cur, nil
		}
		if !ValidTransition(cur.Status, next) {
			return cur, nil
		}
		if cur.Status == next && !podFailed {
			return cur, nil
		}
		cur.Status = next
		cur.UpdatedAt = r.clock.Now()
		if podFailed {
			cur.FailureCount++
			cur.LastError = failureDetail(status)
		}
		maxFailures := r.maxFailuresFor(cur)
		if cur.FailureCount >= maxFailures && next != StatusFailed && next != StatusDeleted {
			// Failure budget exhausted: no further retries, status
			// stays failed even if the resource later recovers.
			cur.Status = StatusFailed
		}
		return cur, nil
	})
	if err != nil {
		r.logger.Warn("reconciler: write-if-changed failed",
			core.StringField("deployment_id", d.ID),
			core.ErrorLogField("error", err),
		)
	}
}

// failureDetail renders the observed failure as a last_error string,
// carrying the resource's own condition messages (e.g. a Job's
// BackoffLimitExceeded reason) rather than a generic phrase.
func failureDetail(status clustergateway.ResourceStatus) string {
	if len(status.Conditions) > 0 {
		return strings.Join(status.Conditions, "; ")
	}
	if status.FailedCount > 0 {
		return fmt.Sprintf("%d pod(s) failed (backoffLimit %d)", status.FailedCount, status.BackoffLimit)
	}
	return "resource entered phase " + status.Phase
}

func (r *Reconciler) maxFailuresFor(d Deployment) int {
	if d.IsVLLM {
		return r.tracker.vllmMaxFailures
	}
	return r.tracker.jobMaxFailures
}

// nextStatus computes the Deployment's next status from observed
// cluster status, following the status lattice and the Job
// completion rule.
func (r *Reconciler) nextStatus(d Deployment, status clustergateway.ResourceStatus) (Status, bool) {
	if d.PrimaryResourceType == ResourceJob {
		if status.FailedCount > status.BackoffLimit || status.Phase == "Failed" {
			return StatusFailed, true
		}
		if status.SucceededCount >= status.Completions && status.Completions > 0 {
			return StatusCompleted, false
		}
		if d.Status == StatusPending {
			return StatusRunning, false
		}
		return d.Status, false
	}

	// Deployment/other long-running resources: phase-driven.
	switch status.Phase {
	case "Failed":
		return StatusFailed, true
	case "Current", "InProgress":
		if d.Status == StatusPending {
			return StatusRunning, false
		}
		return d.Status, false
	default:
		return d.Status, false
	}
}

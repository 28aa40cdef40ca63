package evalscheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
)

// TrackerSubmit is the narrowed shape of deploymenttracker.Tracker.Submit
// this package depends on (a plain, non-vLLM submission — the
// Evaluation Scheduler never carries a ConfigFingerprint). Written as a
// function type rather than an interface so the composition root can
// adapt tracker.Submit with a one-line closure instead of this package
// importing deploymenttracker just for one method.
type TrackerSubmit func(ctx context.Context, yamlBytes []byte, namespace string) (deploymentID string, err error)

// defaultMaxAttempts bounds submission retries before a Task is
// marked failed.
const defaultMaxAttempts = 3

// Metrics is the fire-outcome counter the Sweeper reports, kept as an
// interface so internal/httpapi can wire a Prometheus-backed
// implementation without this package importing client_golang.
type Metrics interface {
	ObserveFire(outcome string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveFire(string) {}

// Sweeper is the single sweeper ticking every poll_interval, picking
// due scheduled tasks, atomically claiming them, and firing them.
type Sweeper struct {
	tasks       dbstore.Collection[Task]
	manifests   *manifeststore.Store
	submit      TrackerSubmit
	clock       core.Clock
	logger      core.Logger
	interval    time.Duration
	maxAttempts int
	namespace   string
	metrics     Metrics
}

// SetMetrics installs m as the Sweeper's metrics sink, overriding the
// NopMetrics default. Exposed as a setter rather than a constructor
// parameter so the composition root can wire Prometheus after
// construction without disturbing NewSweeper's existing call sites.
func (sw *Sweeper) SetMetrics(m Metrics) {
	if m != nil {
		sw.metrics = m
	}
}

// NewSweeper builds a Sweeper.
func NewSweeper(
	tasks dbstore.Collection[Task],
	manifests *manifeststore.Store,
	submit TrackerSubmit,
	clock core.Clock,
	logger core.Logger,
	interval time.Duration,
	maxAttempts int,
	namespace string,
) *Sweeper {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Sweeper{
		tasks:       tasks,
		manifests:   manifests,
		submit:      submit,
		clock:       clock,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		namespace:   namespace,
		metrics:     NopMetrics{},
	}
}

// Run blocks, ticking until ctx is cancelled. Sweeps are single
// in-flight.
func (sw *Sweeper) Run(ctx context.Context) {
	timer := sw.clock.After(sw.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer:
		}
		sw.sweep(ctx)
		timer = sw.clock.After(sw.interval)
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	now := sw.clock.Now()
	due, err := sw.tasks.List(ctx, func(t Task) bool {
		return t.State == StateScheduled && !t.ScheduledAt.After(now)
	})
	if err != nil {
		sw.logger.Error("evalscheduler: sweep list failed", core.ErrorLogField("error", err))
		return
	}
	for _, t := range due {
		sw.fireOne(ctx, t.ID)
	}
}

// fireOne claims and fires a single task. The claim is the at-most-once
// anchor: CompareAndSwap only transitions a task that is still
// `scheduled` at write time, so two concurrent sweepers (or a manual
// /evaluate retrigger racing the sweeper) cannot both fire the same
// task.
func (sw *Sweeper) fireOne(ctx context.Context, taskID string) {
	claimed, err := sw.tasks.CompareAndSwap(ctx, taskID, func(cur Task) (Task, error) {
		if cur.State != StateScheduled {
			return cur, errNotClaimable
		}
		cur.State = StateFiring
		cur.UpdatedAt = sw.clock.Now()
		return cur, nil
	})
	if err != nil {
		if !errors.Is(err, errNotClaimable) {
			sw.logger.Warn("evalscheduler: claim failed", core.StringField("task_id", taskID), core.ErrorLogField("error", err))
		}
		return
	}

	deploymentID, fireErr := sw.compose(ctx, claimed)
	if fireErr == nil {
		sw.metrics.ObserveFire("completed")
		_, err := sw.tasks.CompareAndSwap(ctx, taskID, func(cur Task) (Task, error) {
			cur.State = StateCompleted
			cur.DeploymentID = deploymentID
			cur.UpdatedAt = sw.clock.Now()
			return cur, nil
		})
		if err != nil {
			sw.logger.Error("evalscheduler: mark completed failed", core.ErrorLogField("error", err))
		}
		return
	}

	sw.metrics.ObserveFire("failed")
	sw.logger.Warn("evalscheduler: submission failed",
		core.StringField("task_id", taskID),
		core.ErrorLogField("error", fireErr),
	)
	_, err = sw.tasks.CompareAndSwap(ctx, taskID, func(cur Task) (Task, error) {
		cur.Attempts++
		cur.LastError = fireErr.Error()
		if cur.Attempts < sw.maxAttempts {
			cur.State = StateScheduled
			cur.ScheduledAt = sw.clock.Now().Add(core.EvaluationBackoff(cur.Attempts))
		} else {
			cur.State = StateFailed
		}
		cur.UpdatedAt = sw.clock.Now()
		return cur, nil
	})
	if err != nil {
		sw.logger.Error("evalscheduler: record failure failed", core.ErrorLogField("error", err))
	}
}

var errNotClaimable = errors.New("evalscheduler: task no longer claimable")

// compose assembles one submission: fetch Job+Config (honoring
// ModifiedFile precedence), inline the config as a ConfigMap, inject
// VLLM_MODEL_ENDPOINT, and submit via the Deployment Tracker.
func (sw *Sweeper) compose(ctx context.Context, t Task) (string, error) {
	jobContent, err := sw.manifests.EffectiveContent(ctx, t.JobFileID, t.ModifiedJobID)
	if err != nil {
		return "", err
	}

	var configContent []byte
	if t.ConfigFileID != "" {
		configContent, err = sw.manifests.EffectiveContent(ctx, t.ConfigFileID, t.ModifiedConfigID)
		if err != nil {
			return "", err
		}
	} else {
		configContent = []byte("{}")
	}

	combined, _, err := composeSubmission(jobContent, configContent, t.ModelEndpoint, t.Name)
	if err != nil {
		return "", err
	}

	return sw.submit(ctx, combined, sw.namespace)
}

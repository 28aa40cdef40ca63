package evalscheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
)

// NotFound is returned when a Task lookup fails.
type NotFound struct {
	ID string
}

func (e *NotFound) Error() string { return fmt.Sprintf("evaluation task %q not found", e.ID) }

func notFoundError(id string) error {
	return core.Wrap(core.KindNotFound, "evaluation_task_not_found", "evaluation task not found", &NotFound{ID: id})
}

// NotCancellable is returned by Cancel when the task is not in state
// `scheduled`, the only state Cancel is valid in.
type NotCancellable struct {
	ID    string
	State State
}

func (e *NotCancellable) Error() string {
	return fmt.Sprintf("evaluation task %q is in state %q, not cancellable", e.ID, e.State)
}

func notCancellableError(id string, state State) error {
	return core.Wrap(core.KindConflict, "evaluation_task_not_cancellable", "evaluation task is not in a cancellable state", &NotCancellable{ID: id, State: state})
}

// Scheduler creates, reads and cancels EvaluationTasks.
type Scheduler struct {
	tasks dbstore.Collection[Task]
	ids   core.IDGenerator
	clock core.Clock

	evaluationDelay time.Duration
}

// New builds a Scheduler. evaluationDelay is how far in the future a
// newly scheduled Task's scheduled_at is set.
func New(tasks dbstore.Collection[Task], ids core.IDGenerator, clock core.Clock, evaluationDelay time.Duration) *Scheduler {
	return &Scheduler{tasks: tasks, ids: ids, clock: clock, evaluationDelay: evaluationDelay}
}

// Schedule creates an EvaluationTask with scheduled_at = now +
// evaluation_delay and returns immediately, non-blocking.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Task, error) {
	now := s.clock.Now()
	task := Task{
		ID:               s.ids.NewID(),
		ProjectID:        req.ProjectID,
		BenchmarkType:    req.BenchmarkType,
		JobFileID:        req.JobFileID,
		ConfigFileID:     req.ConfigFileID,
		ModifiedJobID:    req.ModifiedJobID,
		ModifiedConfigID: req.ModifiedConfigID,
		ModelEndpoint:    req.ModelEndpoint,
		Name:             req.Name,
		ScheduledAt:      now.Add(s.evaluationDelay),
		CreatedAt:        now,
		UpdatedAt:        now,
		State:            StateScheduled,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Get returns a Task by ID.
func (s *Scheduler) Get(ctx context.Context, id string) (Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return Task{}, notFoundError(id)
	}
	return t, nil
}

// Cancel transitions a scheduled Task to cancelled via a conditional
// write.
func (s *Scheduler) Cancel(ctx context.Context, id string) (Task, error) {
	updated, err := s.tasks.CompareAndSwap(ctx, id, func(cur Task) (Task, error) {
		if cur.State != StateScheduled {
			return cur, notCancellableError(id, cur.State)
		}
		cur.State = StateCancelled
		cur.UpdatedAt = s.clock.Now()
		return cur, nil
	})
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return Task{}, err
		}
		return Task{}, notFoundError(id)
	}
	return updated, nil
}

package evalscheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
)

func newTestStore(clock core.Clock) *manifeststore.Store {
	return manifeststore.NewStore(
		dbstore.NewMemoryCollection[manifeststore.Project]("projects"),
		dbstore.NewMemoryCollection[manifeststore.File]("files"),
		dbstore.NewMemoryCollection[manifeststore.ModifiedFile]("modified_files"),
		core.NewSequentialGenerator("f"),
		clock,
	)
}

// TestFireOneAtMostOnce is the at-most-once firing invariant:
// concurrent claim attempts on the same task result in exactly one
// successful scheduled->firing transition.
func TestFireOneAtMostOnce(t *testing.T) {
	clock := core.SystemClock{}
	tasks := dbstore.NewMemoryCollection[Task]("evaluation_tasks")
	store := newTestStore(clock)

	project, err := store.CreateProject(context.Background(), manifeststore.Project{
		Name: "p", ConfigFolder: "config", JobFolder: "jobs", PollInterval: time.Minute,
	})
	require.NoError(t, err)
	job, err := store.UpsertFile(context.Background(), project.ID, "jobs/bench.yaml", []byte(sampleJob), manifeststore.FileTypeJob, "sha1")
	require.NoError(t, err)

	task := Task{
		ID:            "task-1",
		JobFileID:     job.ID,
		ModelEndpoint: "http://svc:8000",
		State:         StateScheduled,
		ScheduledAt:   clock.Now().Add(-time.Minute),
		UpdatedAt:     clock.Now(),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	var submitCount int32
	submit := TrackerSubmit(func(_ context.Context, _ []byte, _ string) (string, error) {
		atomic.AddInt32(&submitCount, 1)
		return "deployment-1", nil
	})

	sweeper := NewSweeper(tasks, store, submit, clock, core.NopLogger{}, time.Second, 3, "default")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.fireOne(context.Background(), task.ID)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&submitCount), "task must fire exactly once despite concurrent claim attempts")

	final, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, final.State)
	require.Equal(t, "deployment-1", final.DeploymentID)
}

// TestFireOneRetriesThenFails exercises the retry budget: failed
// submissions increment attempts and reschedule until max_attempts is
// reached, after which the task is marked failed.
func TestFireOneRetriesThenFails(t *testing.T) {
	clock := core.SystemClock{}
	tasks := dbstore.NewMemoryCollection[Task]("evaluation_tasks")
	store := newTestStore(clock)

	project, err := store.CreateProject(context.Background(), manifeststore.Project{
		Name: "p", ConfigFolder: "config", JobFolder: "jobs", PollInterval: time.Minute,
	})
	require.NoError(t, err)
	job, err := store.UpsertFile(context.Background(), project.ID, "jobs/bench.yaml", []byte(sampleJob), manifeststore.FileTypeJob, "sha1")
	require.NoError(t, err)

	task := Task{
		ID:            "task-2",
		JobFileID:     job.ID,
		ModelEndpoint: "http://svc:8000",
		State:         StateScheduled,
		ScheduledAt:   clock.Now().Add(-time.Minute),
		UpdatedAt:     clock.Now(),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	submit := TrackerSubmit(func(_ context.Context, _ []byte, _ string) (string, error) {
		return "", errors.New("cluster unreachable")
	})
	sweeper := NewSweeper(tasks, store, submit, clock, core.NopLogger{}, time.Second, 2, "default")

	sweeper.fireOne(context.Background(), task.ID)
	afterFirst, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, StateScheduled, afterFirst.State)
	require.Equal(t, 1, afterFirst.Attempts)

	// Force the retried task due again and fire it a second time.
	_, err = tasks.CompareAndSwap(context.Background(), task.ID, func(cur Task) (Task, error) {
		cur.ScheduledAt = clock.Now().Add(-time.Minute)
		return cur, nil
	})
	require.NoError(t, err)

	sweeper.fireOne(context.Background(), task.ID)
	afterSecond, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, afterSecond.State)
	require.Equal(t, 2, afterSecond.Attempts)
}

func TestCancelOnlyValidWhenScheduled(t *testing.T) {
	clock := core.SystemClock{}
	tasks := dbstore.NewMemoryCollection[Task]("evaluation_tasks")
	scheduler := New(tasks, core.NewSequentialGenerator("e"), clock, 30*time.Minute)

	task, err := scheduler.Schedule(context.Background(), Request{Name: "run-1"})
	require.NoError(t, err)

	cancelled, err := scheduler.Cancel(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, cancelled.State)

	_, err = scheduler.Cancel(context.Background(), task.ID)
	require.Error(t, err)
	require.Equal(t, core.KindConflict, core.KindOf(err))
}

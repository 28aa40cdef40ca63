package sourcepoller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourceclient"
)

func newTestStore() *manifeststore.Store {
	return manifeststore.NewStore(
		dbstore.NewMemoryCollection[manifeststore.Project]("projects"),
		dbstore.NewMemoryCollection[manifeststore.File]("files"),
		dbstore.NewMemoryCollection[manifeststore.ModifiedFile]("modified_files"),
		core.NewSequentialGenerator("f"),
		core.SystemClock{},
	)
}

func testProject() manifeststore.Project {
	return manifeststore.Project{
		ID:           "proj-1",
		Name:         "bench",
		SourceOwner:  "acme",
		SourceRepo:   "models",
		SourceRef:    "main",
		ConfigFolder: "config",
		JobFolder:    "jobs",
		PollInterval: time.Minute,
	}
}

// TestTickUpsertsNewFilesOnce covers the poll cycle: files
// under config_folder/job_folder are fetched and upserted, and
// re-polling unchanged content does not count as a new upsert.
func TestTickUpsertsNewFilesOnce(t *testing.T) {
	store := newTestStore()
	project, err := store.CreateProject(context.Background(), testProject())
	require.NoError(t, err)

	source := sourceclient.NewFake()
	source.Seed("acme", "models", "main", "jobs/bench.yaml", []byte("kind: Job"))
	source.Seed("acme", "models", "main", "config/model.yaml", []byte("model: llama"))

	poller := New(store, source, sourceclient.StaticCredentials{Token: "tok"}, core.SystemClock{}, core.NopLogger{}, nil)

	require.NoError(t, poller.Tick(context.Background(), project))
	files, err := store.ListFiles(context.Background(), project.ID, manifeststore.ListFilesFilter{})
	require.NoError(t, err)
	require.Len(t, files, 2)

	// Re-polling identical content must not produce a conflict or a
	// second distinct upsert outcome.
	require.NoError(t, poller.Tick(context.Background(), project))
	filesAgain, err := store.ListFiles(context.Background(), project.ID, manifeststore.ListFilesFilter{})
	require.NoError(t, err)
	require.Len(t, filesAgain, 2)
}

// TestTickSkipsOverlappingCalls covers the per-project tick
// overlap-skip law: a Tick already in flight causes a concurrent Tick
// to return immediately without a second source fetch.
func TestTickSkipsOverlappingCalls(t *testing.T) {
	store := newTestStore()
	project, err := store.CreateProject(context.Background(), testProject())
	require.NoError(t, err)

	source := sourceclient.NewFake()
	source.Seed("acme", "models", "main", "jobs/bench.yaml", []byte("kind: Job"))

	poller := New(store, source, sourceclient.StaticCredentials{Token: "tok"}, core.SystemClock{}, core.NopLogger{}, nil)

	// Hold the per-project in-flight lock manually to simulate an
	// already-running tick, then assert a second Tick is a no-op.
	poller.mu.Lock()
	lock := &sync.Mutex{}
	poller.inFlight[project.ID] = lock
	poller.mu.Unlock()
	lock.Lock()

	require.NoError(t, poller.Tick(context.Background(), project))

	files, err := store.ListFiles(context.Background(), project.ID, manifeststore.ListFilesFilter{})
	require.NoError(t, err)
	require.Empty(t, files, "overlapping tick must not have fetched anything")

	lock.Unlock()
}

// TestTickIsolatesProjectFailures: one project's credential resolution
// failure must not be observable as anything other than that project's
// own error; it must not panic or corrupt shared poller state used by
// a second project.
func TestTickIsolatesProjectFailures(t *testing.T) {
	store := newTestStore()
	okProject, err := store.CreateProject(context.Background(), testProject())
	require.NoError(t, err)
	badProject := testProject()
	badProject.ID = "proj-2"
	badProject.CredentialsRef = "missing"
	badProject, err = store.CreateProject(context.Background(), badProject)
	require.NoError(t, err)

	source := sourceclient.NewFake()
	source.Seed("acme", "models", "main", "jobs/bench.yaml", []byte("kind: Job"))

	var resolveCalls int32
	creds := credsFunc(func(_ context.Context, ref string) (string, error) {
		atomic.AddInt32(&resolveCalls, 1)
		if ref == "missing" {
			return "", errNoCreds
		}
		return "tok", nil
	})

	poller := New(store, source, creds, core.SystemClock{}, core.NopLogger{}, nil)

	require.Error(t, poller.Tick(context.Background(), badProject))
	require.NoError(t, poller.Tick(context.Background(), okProject))

	files, err := store.ListFiles(context.Background(), okProject.ID, manifeststore.ListFilesFilter{})
	require.NoError(t, err)
	require.Len(t, files, 1)
}

type credsFunc func(ctx context.Context, ref string) (string, error)

func (f credsFunc) Resolve(ctx context.Context, ref string) (string, error) { return f(ctx, ref) }

var errNoCreds = &notFoundCredsError{}

type notFoundCredsError struct{}

func (*notFoundCredsError) Error() string { return "no credentials for ref" }

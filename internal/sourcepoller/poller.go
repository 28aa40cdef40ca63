// Package sourcepoller runs one logical loop per Project, pulling files
// under its config_folder and job_folder from the external versioned
// source into the Manifest Store.
package sourcepoller

import (
	"context"
	"sync"
	"time"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourceclient"
)

// Metrics is the small set of counters/histograms the poller reports,
// kept as an interface so internal/httpapi can wire a Prometheus-backed
// implementation without this package importing client_golang directly
// into its core loop logic.
type Metrics interface {
	ObservePoll(projectID string, ok bool, duration time.Duration, upserts int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObservePoll(string, bool, time.Duration, int) {}

// Poller drives one tick loop per Project. Ticks never overlap within a
// Project; poll failures for one Project never affect
// another's schedule.
type Poller struct {
	store   *manifeststore.Store
	source  sourceclient.Client
	creds   sourceclient.Credentials
	clock   core.Clock
	logger  core.Logger
	metrics Metrics

	mu       sync.Mutex
	cancel   map[string]context.CancelFunc
	inFlight map[string]*sync.Mutex
}

// New builds a Poller over the given Manifest Store and source client.
func New(store *manifeststore.Store, source sourceclient.Client, creds sourceclient.Credentials, clock core.Clock, logger core.Logger, metrics Metrics) *Poller {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Poller{
		store:    store,
		source:   source,
		creds:    creds,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		cancel:   make(map[string]context.CancelFunc),
		inFlight: make(map[string]*sync.Mutex),
	}
}

// StartProject launches the per-Project timer loop, cancellable by
// calling StopProject or Shutdown. It is a no-op if already running for
// this project ID.
func (p *Poller) StartProject(ctx context.Context, project manifeststore.Project) {
	p.mu.Lock()
	if _, running := p.cancel[project.ID]; running {
		p.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel[project.ID] = cancel
	p.inFlight[project.ID] = &sync.Mutex{}
	p.mu.Unlock()

	go p.run(loopCtx, project)
}

// StopProject cancels the loop for a deleted or updated Project.
// Callers updating a Project's poll_interval must StopProject then
// StartProject with the refreshed metadata.
func (p *Poller) StopProject(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.cancel[projectID]; ok {
		cancel()
		delete(p.cancel, projectID)
		delete(p.inFlight, projectID)
	}
}

// Shutdown cancels every running loop.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.cancel {
		cancel()
		delete(p.cancel, id)
	}
}

func (p *Poller) run(ctx context.Context, project manifeststore.Project) {
	policy := core.NewLoopBackoffPolicy(project.PollInterval)
	backoffState := policy.NewExponentialBackOff()

	timer := p.clock.After(project.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer:
		}

		if err := p.tick(ctx, project); err != nil {
			wait := backoffState.NextBackOff()
			p.logger.Warn("source poll failed, backing off",
				core.StringField("project_id", project.ID),
				core.ErrorLogField("error", err),
			)
			timer = p.clock.After(wait)
			continue
		}
		backoffState.Reset()
		timer = p.clock.After(project.PollInterval)
	}
}

// Tick runs one poll cycle for project synchronously, used by
// StartProject's loop and by POST /projects/{id}/sync. Tick never
// overlaps itself for the same project: if a tick is already running
// it is skipped and logged.
func (p *Poller) Tick(ctx context.Context, project manifeststore.Project) error {
	return p.tick(ctx, project)
}

func (p *Poller) tick(ctx context.Context, project manifeststore.Project) error {
	p.mu.Lock()
	lock, ok := p.inFlight[project.ID]
	if !ok {
		lock = &sync.Mutex{}
		p.inFlight[project.ID] = lock
	}
	p.mu.Unlock()

	if !lock.TryLock() {
		p.logger.Info("skipping overlapping poll tick", core.StringField("project_id", project.ID))
		return nil
	}
	defer lock.Unlock()

	start := p.clock.Now()
	upserts, err := p.pollOnce(ctx, project)
	p.metrics.ObservePoll(project.ID, err == nil, p.clock.Now().Sub(start), upserts)
	return err
}

func (p *Poller) pollOnce(ctx context.Context, project manifeststore.Project) (int, error) {
	token, err := p.creds.Resolve(ctx, project.CredentialsRef)
	if err != nil {
		return 0, core.Wrap(core.KindUpstream, "credentials_unresolved", "could not resolve source credentials", err)
	}

	before, err := p.store.ListFiles(ctx, project.ID, manifeststore.ListFilesFilter{})
	if err != nil {
		return 0, err
	}
	byPath := make(map[string]manifeststore.File, len(before))
	for _, f := range before {
		byPath[f.Path] = f
	}

	upserts := 0
	for _, folder := range []string{project.ConfigFolder, project.JobFolder} {
		files, err := p.source.List(ctx, project.SourceOwner, project.SourceRepo, project.SourceRef, folder, token)
		if err != nil {
			return upserts, core.Wrap(core.KindUpstream, "source_list_failed", "listing files from source failed", err)
		}
		for _, fi := range files {
			fileType, ok := manifeststore.DeriveFileType(project, fi.Path)
			if !ok {
				continue
			}
			content, commit, err := p.source.GetFile(ctx, project.SourceOwner, project.SourceRepo, project.SourceRef, fi.Path, token)
			if err != nil {
				return upserts, core.Wrap(core.KindUpstream, "source_get_failed", "fetching file from source failed", err)
			}
			existing, existed := byPath[fi.Path]
			unchanged := existed && string(existing.Content) == string(content) && existing.SourceCommit == commit
			if _, err := p.store.UpsertFile(ctx, project.ID, fi.Path, content, fileType, commit); err != nil {
				return upserts, core.Wrap(core.KindUpstream, "upsert_failed", "persisting file failed", err)
			}
			if !unchanged {
				upserts++
			}
		}
	}
	// Files no longer present in the source are left in place
	// (archive semantics); no delete here.
	return upserts, nil
}

// Package registrybridge mirrors the upstream model registry into the
// versioned source as rendered application manifests.
// State is derived entirely from the source repository: a file at
// applications/{run_id}.yaml means "already mirrored", so this package
// keeps no auxiliary local store.
package registrybridge

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/registrybridge/registry"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourceclient"
)

// TemplateFileName is the single application template the bridge
// renders from, resolved relative to TemplateDir.
const TemplateFileName = "application.yaml.tmpl"

// Metrics is the counters the bridge reports, mirroring the shape
// sourcepoller.Metrics uses so internal/httpapi can wire one
// Prometheus registration path for every background loop.
type Metrics interface {
	ObserveTick(ok bool, duration time.Duration, created, updated int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveTick(bool, time.Duration, int, int) {}

// Bridge drives the single `polling_interval` tick loop.
type Bridge struct {
	registryClient registry.Client
	source         sourceclient.Client
	creds          sourceclient.Credentials

	owner, repo, ref             string
	templateDir, applicationsDir string
	credentialsRef               string

	clock   core.Clock
	logger  core.Logger
	metrics Metrics
}

// Config names the source repository location the bridge mirrors
// into.
type Config struct {
	Owner, Repo, Ref             string
	TemplateDir, ApplicationsDir string
	CredentialsRef               string
}

// New builds a Bridge.
func New(registryClient registry.Client, source sourceclient.Client, creds sourceclient.Credentials, cfg Config, clock core.Clock, logger core.Logger, metrics Metrics) *Bridge {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Bridge{
		registryClient:  registryClient,
		source:          source,
		creds:           creds,
		owner:           cfg.Owner,
		repo:            cfg.Repo,
		ref:             cfg.Ref,
		templateDir:     cfg.TemplateDir,
		applicationsDir: cfg.ApplicationsDir,
		credentialsRef:  cfg.CredentialsRef,
		clock:           clock,
		logger:          logger,
		metrics:         metrics,
	}
}

// Run blocks, ticking every interval until ctx is cancelled. Ticks
// never overlap.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) {
	timer := b.clock.After(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer:
		}
		b.Tick(ctx)
		timer = b.clock.After(interval)
	}
}

// Tick performs one enumerate-and-mirror pass.
func (b *Bridge) Tick(ctx context.Context) {
	start := b.clock.Now()
	created, updated, err := b.tick(ctx)
	ok := err == nil
	if err != nil {
		b.logger.Warn("registrybridge: tick failed", core.ErrorLogField("error", err))
	}
	b.metrics.ObserveTick(ok, b.clock.Now().Sub(start), created, updated)
}

func (b *Bridge) tick(ctx context.Context) (created, updated int, err error) {
	token, err := b.creds.Resolve(ctx, b.credentialsRef)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving source credentials: %w", err)
	}

	versions, err := b.registryClient.ListVersions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing registry versions: %w", err)
	}

	mirrored, err := b.source.List(ctx, b.owner, b.repo, b.ref, b.applicationsDir, token)
	if err != nil {
		return 0, 0, fmt.Errorf("listing mirrored applications: %w", err)
	}
	mirroredByRunID := make(map[string]sourceclient.FileInfo, len(mirrored))
	for _, f := range mirrored {
		runID := runIDFromPath(f.Path)
		if runID != "" {
			mirroredByRunID[runID] = f
		}
	}

	var templateBytes []byte

	for _, v := range versions {
		applicationPath := path.Join(b.applicationsDir, v.RunID+".yaml")

		if _, exists := mirroredByRunID[v.RunID]; !exists {
			if templateBytes == nil {
				templateBytes, _, err = b.source.GetFile(ctx, b.owner, b.repo, b.ref, path.Join(b.templateDir, TemplateFileName), token)
				if err != nil {
					return created, updated, fmt.Errorf("fetching application template: %w", err)
				}
			}
			rendered, err := renderApplication(templateBytes, v)
			if err != nil {
				b.logger.Warn("registrybridge: render failed",
					core.StringField("run_id", v.RunID), core.ErrorLogField("error", err))
				continue
			}
			if _, err := b.source.PutFile(ctx, b.owner, b.repo, b.ref, applicationPath, rendered,
				"mirror model version "+v.RunID, token); err != nil {
				b.logger.Warn("registrybridge: mirror write failed",
					core.StringField("run_id", v.RunID), core.ErrorLogField("error", err))
				continue
			}
			created++
			continue
		}

		existing, _, err := b.source.GetFile(ctx, b.owner, b.repo, b.ref, applicationPath, token)
		if err != nil {
			b.logger.Warn("registrybridge: reading mirrored application failed",
				core.StringField("run_id", v.RunID), core.ErrorLogField("error", err))
			continue
		}
		rewritten, changed, err := updateGlobalBlock(existing, v)
		if err != nil {
			b.logger.Warn("registrybridge: updating global block failed",
				core.StringField("run_id", v.RunID), core.ErrorLogField("error", err))
			continue
		}
		if !changed {
			continue
		}
		if _, err := b.source.PutFile(ctx, b.owner, b.repo, b.ref, applicationPath, rewritten,
			"update mirrored model version "+v.RunID, token); err != nil {
			b.logger.Warn("registrybridge: update write failed",
				core.StringField("run_id", v.RunID), core.ErrorLogField("error", err))
			continue
		}
		updated++
	}

	return created, updated, nil
}

func runIDFromPath(p string) string {
	base := path.Base(p)
	const suffix = ".yaml"
	if len(base) <= len(suffix) || base[len(base)-len(suffix):] != suffix {
		return ""
	}
	return base[:len(base)-len(suffix)]
}

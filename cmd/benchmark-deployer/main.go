// Command benchmark-deployer is the Config Sync Engine + Deployment
// Engine + Evaluation Scheduler + Terminal Broker binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/config"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/deploymenttracker"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/evalscheduler"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httpapi"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/manifeststore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourceclient"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourcepoller"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/terminalbroker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadDeployerConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := core.NewZapLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.MongoURL)
	if err != nil {
		return fmt.Errorf("connecting to document store: %w", err)
	}
	defer pool.Close()
	if err := dbstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrating document store: %w", err)
	}

	restConfig, err := clustergateway.LoadRESTConfig(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("loading cluster config: %w", err)
	}
	gateway, err := clustergateway.New(restConfig, logger)
	if err != nil {
		return fmt.Errorf("building cluster gateway: %w", err)
	}

	clock := core.SystemClock{}
	ulids := core.NewULIDGenerator()
	uuids := core.NewUUIDGenerator()

	registry := prometheus.NewRegistry()

	store := manifeststore.NewStore(
		dbstore.NewPostgresCollection[manifeststore.Project](pool, "projects"),
		dbstore.NewPostgresCollection[manifeststore.File](pool, "files"),
		dbstore.NewPostgresCollection[manifeststore.ModifiedFile](pool, "modified_files"),
		ulids, clock,
	)

	sourceHTTPClient := sourceclient.NewGitHubClient(cfg.SourceAPIBaseURL)
	creds := sourceclient.StaticCredentials{Token: cfg.SourceToken}
	poller := sourcepoller.New(store, sourceHTTPClient, creds, clock, logger, httpapi.NewPollerMetrics(registry))

	podLister := &deploymenttracker.GatewayPodLister{Gateway: gateway}
	tracker := deploymenttracker.New(
		dbstore.NewPostgresCollection[deploymenttracker.Deployment](pool, "deployments"),
		gateway, podLister, ulids, clock, logger,
		cfg.JobMaxFailures, cfg.JobMaxFailures, // non-vLLM binary: the stricter vLLM budget never applies here
	)
	reconciler := deploymenttracker.NewReconciler(tracker, clock, logger, cfg.ReconcileInterval, cfg.ReconcileConcurrency, cfg.DeploymentTimeout(), httpapi.NewReconcilerMetrics(registry))

	broker := terminalbroker.New(&terminalbroker.GatewayExecOpener{Gateway: gateway}, tracker, uuids, clock, logger, cfg.TerminalIdleTimeout)

	// submitJob adapts Tracker.Submit (which returns the full
	// Deployment, needed by the generic /deploy handler) to
	// evalscheduler.TrackerSubmit's narrower deployment-id-only shape;
	// benchmark jobs are never vLLM deployments so fingerprint is nil.
	submitJob := func(ctx context.Context, yamlBytes []byte, namespace string) (string, error) {
		d, err := tracker.Submit(ctx, yamlBytes, namespace, nil)
		if err != nil {
			return "", err
		}
		return d.ID, nil
	}

	evalTasks := dbstore.NewPostgresCollection[evalscheduler.Task](pool, "evaluation_tasks")
	scheduler := evalscheduler.New(evalTasks, uuids, clock, cfg.EvaluationDelay())
	sweeper := evalscheduler.NewSweeper(evalTasks, store, submitJob, clock, logger, cfg.EvaluationSweepInterval, cfg.EvaluationMaxAttempts, cfg.DefaultNamespace)
	sweeper.SetMetrics(httpapi.NewEvalSchedulerMetrics(registry))
	runner := evalscheduler.NewRunner(store, submitJob, cfg.DefaultNamespace)

	router := httpapi.NewDeployerRouter(httpapi.DeployerRouterControllers{
		Projects:   httpapi.NewProjectsController(ctx, store, poller, logger),
		Jobs:       httpapi.NewJobsController(tracker, int64(cfg.LogTailLines), logger),
		Terminal:   httpapi.NewTerminalController(ctx, broker, logger),
		Evaluation: httpapi.NewEvaluationController(scheduler, runner, logger),
		Health:     httpapi.NewHealthController(pool, logger),
	})
	httpapi.MountMetrics(router, registry)

	projects, err := store.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects on startup: %w", err)
	}
	for _, p := range projects {
		poller.StartProject(ctx, p)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); reconciler.Run(ctx) }()
	go func() { defer wg.Done(); sweeper.Run(ctx) }()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				broker.SweepIdle()
			}
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("benchmark-deployer listening", core.StringField("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	poller.Shutdown()
	broker.Shutdown()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown grace period elapsed before background loops exited")
	}
	return nil
}

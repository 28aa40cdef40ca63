// Command benchmark-vllm is the Placement Engine + vLLM-flavored
// `/deploy` admission binary.
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
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httpapi"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/placement"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadVLLMConfig()
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
	registry := prometheus.NewRegistry()

	podLister := &deploymenttracker.GatewayPodLister{Gateway: gateway}
	tracker := deploymenttracker.New(
		dbstore.NewPostgresCollection[deploymenttracker.Deployment](pool, "vllm_deployments"),
		gateway, podLister, ulids, clock, logger,
		cfg.VLLMMaxFailures, cfg.VLLMMaxFailures, // vLLM-only binary: both budgets are the stricter one
	)
	reconciler := deploymenttracker.NewReconciler(tracker, clock, logger, cfg.ReconcileInterval, cfg.ReconcileConcurrency, cfg.DeploymentTimeout(), httpapi.NewReconcilerMetrics(registry))

	engine := placement.New(tracker, logger)

	router := httpapi.NewVLLMRouter(httpapi.VLLMRouterControllers{
		VLLM:   httpapi.NewVLLMController(engine, tracker, cfg.DefaultNamespace, cfg.EvictionTimeout, logger),
		Health: httpapi.NewHealthController(pool, logger),
	})
	httpapi.MountMetrics(router, registry)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); reconciler.Run(ctx) }()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("benchmark-vllm listening", core.StringField("addr", server.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown grace period elapsed before the reconciler exited")
	}
	return nil
}

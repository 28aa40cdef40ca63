// Command registry-bridge is the Registry-to-Source Bridge: a single
// poller with no domain HTTP surface beyond health and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/config"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httpapi"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/registrybridge"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/registrybridge/registry"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/sourceclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadBridgeConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := core.NewZapLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// registry-bridge derives its mirrored-state from the source
	// repository itself, but still shares the document store pool so /health
	// reports the same liveness signal the other two binaries do.
	pool, err := pgxpool.New(ctx, cfg.MongoURL)
	if err != nil {
		return fmt.Errorf("connecting to document store: %w", err)
	}
	defer pool.Close()
	if err := dbstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrating document store: %w", err)
	}

	clock := core.SystemClock{}
	registryClient := registry.New(cfg.RegistryURL, cfg.RegistryToken, nil)
	sourceHTTPClient := sourceclient.NewGitHubClient(cfg.SourceAPIBaseURL)
	creds := sourceclient.StaticCredentials{Token: cfg.SourceToken}

	reg := prometheus.NewRegistry()
	bridge := registrybridge.New(registryClient, sourceHTTPClient, creds, registrybridge.Config{
		Owner:           cfg.SourceOwner,
		Repo:            cfg.SourceRepo,
		Ref:             cfg.SourceRef,
		TemplateDir:     cfg.TemplateDir,
		ApplicationsDir: cfg.ApplicationsDir,
		CredentialsRef:  cfg.CredentialsRef,
	}, clock, logger, httpapi.NewBridgeMetrics(reg))

	done := make(chan struct{})
	go func() {
		defer close(done)
		bridge.Run(ctx, cfg.PollingInterval())
	}()

	router := httpapi.NewBridgeRouter(httpapi.BridgeRouterControllers{
		Health:   httpapi.NewHealthController(pool, logger),
		Registry: reg,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("registry-bridge listening", core.StringField("addr", server.Addr))
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

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown grace period elapsed before the bridge loop exited")
	}
	return nil
}

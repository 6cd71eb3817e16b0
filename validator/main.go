package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sg-labs/events-validator-go/internal/platform/env"
	"github.com/sg-labs/events-validator-go/internal/platform/httpserver"
	"github.com/sg-labs/events-validator-go/internal/platform/objectstore"
	"github.com/sg-labs/events-validator-go/internal/platform/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("VALIDATOR_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("VALIDATOR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	svcCfg, err := serviceConfigFromEnv()
	if err != nil {
		logger.Error("invalid service config", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBucket(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := newValidatorMetrics(registry)

	sink := newLogSink(logger, newPostgresLogWriter(db, svcCfg.LogTable), metrics, svcCfg.QueueSize)
	sink.start()

	resolver := newSchemaResolver(
		newMinioSchemaStore(storeClient, storeCfg.BucketSchemas),
		newSchemaCache(),
		metrics,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("validator"))
	// original deployments probe /health
	mux.HandleFunc("GET /health", httpserver.Healthz("validator"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"validator",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBucket(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	api := newValidatorAPI(logger, resolver, sink, metrics, svcCfg)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "validator",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	err = httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "validator", mux))
	sink.close(shutdownTimeout)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

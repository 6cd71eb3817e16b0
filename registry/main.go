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

	"github.com/sg-labs/events-validator-go/internal/platform/auth"
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

	addr := env.String("REGISTRY_HTTP_ADDR", ":8081")
	shutdownTimeout, err := env.Duration("REGISTRY_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	logTable := env.String("VALIDATOR_LOG_TABLE", "event_logs")

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

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	var authenticator auth.Authenticator
	var oidcService *auth.OIDCService
	switch authCfg.Mode {
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeOIDC:
		svc, err := auth.NewOIDCService(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(1)
		}
		oidcService = svc
		authenticator = svc
	case auth.ModeDisabled:
		authenticator = nil
	default:
		logger.Error("unsupported auth mode", "mode", authCfg.Mode)
		os.Exit(2)
	}

	protected := func(handler http.Handler) http.Handler {
		if authenticator == nil {
			return handler
		}
		return auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			Authorize:     auth.MethodRoleAuthorizer(),
		}.Wrap(handler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("registry"))
	mux.HandleFunc("GET /health", httpserver.Healthz("registry"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"registry",
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

	if oidcService != nil {
		loginHandler, err := oidcService.LoginHandler()
		if err != nil {
			logger.Error("oidc login handler init failed", "error", err)
			os.Exit(2)
		}
		callbackHandler, err := oidcService.CallbackHandler()
		if err != nil {
			logger.Error("oidc callback handler init failed", "error", err)
			os.Exit(2)
		}
		mux.HandleFunc("GET /auth/login", loginHandler)
		mux.HandleFunc("GET /auth/callback", callbackHandler)
		mux.HandleFunc("/auth/logout", oidcService.LogoutHandler())
		mux.Handle("GET /auth/session", auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
		}.Wrap(oidcService.SessionHandler()))
	}

	apiMux := http.NewServeMux()
	api := newRegistryAPI(logger, newMinioSchemaStore(storeClient, storeCfg.BucketSchemas), db, logTable)
	api.register(apiMux)
	mux.Handle("/", protected(apiMux))

	cfg := httpserver.Config{
		Service:         "registry",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	err = httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "registry", mux))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/config"
	"github.com/zhouzirui/webverse/backend/internal/handler"
	"github.com/zhouzirui/webverse/backend/internal/logger"
	"github.com/zhouzirui/webverse/backend/internal/middleware"
	"github.com/zhouzirui/webverse/backend/internal/service/proxy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "%v\nfix the auth config before starting the API server\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	forwarder, err := proxy.NewForwarder(proxy.Options{
		Endpoint: cfg.Story.Endpoint,
		Timeout:  cfg.Story.Timeout,
		Metrics:  proxy.NewMetrics(registry),
		Logger:   log,
	})
	if err != nil {
		log.Fatal("invalid story backend configuration", zap.Error(err))
	}

	jwks := middleware.NewJWKS(ctx, cfg.Auth.JWKSURL(), log)
	defer jwks.Close()
	verifier := middleware.NewVerifier(jwks.Keyfunc, cfg.Auth.Issuer(), cfg.Auth.Audience, log)

	router := handler.NewRouter(handler.Deps{
		Forwarder: forwarder,
		Guard:     verifier.Handler,
		AppOrigin: cfg.Auth.AppOrigin,
		BodyLimit: cfg.Server.BodyLimit,
		Registry:  registry,
		Logger:    log,
	})

	log.Info("story backend configured",
		zap.String("endpoint", cfg.Story.Endpoint),
		zap.Duration("timeout", cfg.Story.Timeout),
		zap.String("app_origin", cfg.Auth.AppOrigin),
	)

	startServer(ctx, log, cfg.Server, router)
}

func startServer(ctx context.Context, log *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("API server listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("API server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gagyebu/internal/cache"
	"gagyebu/internal/cli"
	"gagyebu/internal/core"
	apphttp "gagyebu/internal/http"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/notify"
	"gagyebu/internal/remote/httpapi"
	"gagyebu/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cfg.Location()

	client, err := httpapi.New(cfg.APIURL,
		httpapi.WithTimeout(cfg.RequestTimeout),
		httpapi.WithReferenceTTL(cfg.ReferenceTTL),
		httpapi.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to create record API client", log.FieldError, err, "api_url", cfg.APIURL)
		os.Exit(1)
	}

	caches := cache.NewManager(logger)
	caches.Register(client.ReferenceCache())
	caches.StartCleanup(cfg.ReferenceTTL)
	defer caches.Stop()

	ws := session.New(client, notify.Log(logger), logger)
	if err := ws.Start(context.Background()); err != nil {
		logger.Error("Failed to start workspace", log.FieldError, err)
		os.Exit(1)
	}

	// An unreachable API at boot is not fatal: the page shows the load error and
	// the refresh button retries.
	initCtx, cancelInit := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if err := ws.Load(initCtx, core.CurrentMonth(loc)); err != nil {
		logger.Warn("Initial load failed", log.FieldError, err)
	}
	cancelInit()

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		Location:       loc,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      ratelimit.DefaultConfig(),
		Metrics:        true,
	}, ws, logger)
	if err != nil {
		logger.Error("Failed to create UI server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := ws.Stop(ctx); err != nil {
			logger.Error("Workspace stop error", log.FieldError, err)
		}
	})

	logger.Info("Starting gagyebu", "port", cfg.Port, "api_url", cfg.APIURL, "timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

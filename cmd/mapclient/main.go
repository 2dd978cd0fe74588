package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"mapclient.gnet.app/internal/app"
	"mapclient.gnet.app/internal/config"
	"mapclient.gnet.app/internal/device"
	"mapclient.gnet.app/internal/logging"
	"mapclient.gnet.app/internal/report"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx, os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	report.SetupSentry(cfg.SentryDSN, cfg.Env, version, logger)
	defer report.FlushSentry()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		report.ReportError(err, sentry.LevelFatal)
		return err
	}
	defer closeStore()

	client := app.NewPooledClient(30 * time.Second)
	application, err := app.New(cfg, logger, client, store, device.NewNetInfo(), version)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		report.ReportError(err, sentry.LevelFatal)
		return err
	}
	defer application.Shutdown()

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:      application.Routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			report.ReportError(err, sentry.LevelFatal)
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	}
	return nil
}

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

	"pairprice/internal/api"
	"pairprice/internal/app"
	"pairprice/internal/config"
	"pairprice/internal/logging"
	"pairprice/internal/provider/ratelimit"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log, closer := logging.New(cfg.Log)
	slog.SetDefault(log)

	err = run(cfg, log)
	if err != nil {
		log.Error("server stopped", slog.String("error", err.Error()))
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting API")

	keys, err := api.LoadKeys(cfg.Server.APIKeysFile)
	if err != nil {
		// serve anyway; every request will be rejected as unauthorized
		log.Error("loadApiKeys", slog.String("error", err.Error()))
		keys = api.NewKeySet()
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.Engine.Start(ctx)
	defer a.Engine.Stop()

	limiter := ratelimit.NewKeyed(time.Duration(cfg.Server.RateLimit.WindowSec)*time.Second, cfg.Server.RateLimit.MaxRequests)
	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.New(a.Engine, keys, limiter, timeout, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		scheme := "http"
		if cfg.Server.HTTPS {
			scheme = "https"
		}
		log.Info("server running", slog.String("url", scheme+"://"+cfg.Server.Addr()))
		var err error
		if cfg.Server.HTTPS {
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server closed")
	return nil
}

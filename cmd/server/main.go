package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricequorum/internal/config"
	"pricequorum/internal/httpx"
	"pricequorum/internal/logging"
	"pricequorum/internal/registry"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		boot := logging.New("info", "json")
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	requestTimeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	agg, set, err := registry.NewAggregator(cfg, httpx.New(requestTimeout), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("registry")
	}
	logger.Info().Str("mode", cfg.Mode).Int("connectors", len(set.Connectors)).
		Int("min_sources", cfg.Aggregator.MinSources).Msg("aggregator ready")

	h := &handler{agg: agg, set: set, mode: cfg.Mode, timeout: requestTimeout, logger: logger}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withCORS(withGzip(recoverPanic(logger, accessLog(logger, limitBody(h.routes()))))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"milista/internal/config"
	"milista/internal/infra"
	"milista/internal/router"
	"milista/internal/service"
	"milista/internal/store"
	"milista/internal/store/memstore"
	"milista/internal/store/pgstore"
	"milista/internal/store/redisstore"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	st, err := nuevoStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to initialize store")
	}

	sesiones := service.NewSessionService(st, cfg)
	defer sesiones.Close()

	r := router.New(cfg, st, sesiones)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout also cycles /v1/lista/stream: SSE connections are cut
		// every 30s and clients resume through EventSource auto-reconnect.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("backend", cfg.StoreBackend).Msgf("milista listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}

// nuevoStore builds the configured store backend. memory needs no
// infrastructure and is the development default.
func nuevoStore(cfg *config.Config) (store.Client, error) {
	switch cfg.StoreBackend {
	case "redis":
		rdb, err := infra.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redisstore.New(rdb, cfg.BulkBatchLimit), nil
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pgstore.New(db, cfg.BulkBatchLimit, time.Duration(cfg.PollIntervalSeconds)*time.Second)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("STORE_BACKEND desconocido: %q", cfg.StoreBackend)
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ordering-service/internal/config"
	"github.com/vasiliy-maslov/ordering-service/internal/db"
	"github.com/vasiliy-maslov/ordering-service/internal/idempotency"
	"github.com/vasiliy-maslov/ordering-service/internal/order"
	"github.com/vasiliy-maslov/ordering-service/internal/outbox"
	"github.com/vasiliy-maslov/ordering-service/internal/publisher"
	"github.com/vasiliy-maslov/ordering-service/internal/relay"
	"github.com/vasiliy-maslov/ordering-service/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "ordering-service").Logger()

	log.Info().Msg("Ordering service starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	if err := dbConn.ApplyMigrations(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	redisPublisher, err := publisher.NewRedisPublisher(ctx, cfg.Redis.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer redisPublisher.Close()

	orderRepo := order.NewPostgresRepository(dbConn.Pool)
	outboxStore := outbox.NewPostgresStore(dbConn.Pool, cfg.Relay.MaxAttempts, cfg.Relay.BackoffBase)
	requestLog := idempotency.NewPostgresLog(dbConn.Pool)
	txManager := db.NewTxManager(dbConn.Pool)
	svc := order.NewService(orderRepo, outboxStore, requestLog, txManager)

	relayCtx, stopRelay := context.WithCancel(ctx)
	outboxRelay := relay.New(outboxStore, redisPublisher, relay.Config{
		Interval:  cfg.Relay.Interval,
		BatchSize: cfg.Relay.BatchSize,
		Lease:     cfg.Relay.Lease,
	})
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		outboxRelay.Run(relayCtx)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(svc),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}

	stopRelay()
	<-relayDone

	log.Info().Msg("Server stopped")
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/events"
	"github.com/dvloznov/finance-assistant/internal/logger"
)

// The worker consumes proposal decision events from AMQP and writes them to
// the audit log.
func main() {
	cfg := config.Load()
	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithJSON(cfg.LogJSON))

	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required for the worker")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	client, err := events.NewAMQPClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to AMQP")
	}
	defer client.Close()

	// Cancel consumption on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.AMQPQueue).Msg("Worker service started, waiting for events...")

	if err := client.Consume(ctx, events.Audit(log)); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Event consumption stopped")
		client.Close()
		os.Exit(1)
	}

	log.Info().Msg("Worker service exited")
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-assistant/internal/api"
	"github.com/dvloznov/finance-assistant/internal/api/handlers"
	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/app"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/logger"
)

func main() {
	cfg := config.Load()

	// Flags override the environment
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port (or set PORT)")
	flag.StringVar(&cfg.LedgerBackend, "ledger", cfg.LedgerBackend, "Ledger backend: memory or bigquery (or set LEDGER_BACKEND)")
	flag.Parse()

	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithJSON(cfg.LogJSON))

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Assemble the assistant; the event workers live until shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assistantApp, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize assistant")
	}

	handler := api.NewRouter(
		handlers.NewAssistantHandler(assistantApp.Gateway, log),
		middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log,
	)

	// Create HTTP server. The write timeout leaves room for a full reasoning
	// round.
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ReasoningTimeout*time.Duration(cfg.MaxToolIterations) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("ledger", cfg.LedgerBackend).
			Str("model", cfg.GeminiModel).
			Bool("amqp", cfg.AMQPURL != "").
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the event workers, then release clients
	cancel()
	if err := assistantApp.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close assistant")
	}

	log.Info().Msg("Server exited")
}

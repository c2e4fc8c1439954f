// Package app assembles the assistant from configuration. It is shared by
// the HTTP server and the interactive CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/finance-assistant/internal/assistant"
	"github.com/dvloznov/finance-assistant/internal/attachments"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/events"
	eventsmem "github.com/dvloznov/finance-assistant/internal/events/inmemory"
	infraBQ "github.com/dvloznov/finance-assistant/internal/infra/bigquery"
	"github.com/dvloznov/finance-assistant/internal/ledger"
	ledgermem "github.com/dvloznov/finance-assistant/internal/ledger/inmemory"
	"github.com/dvloznov/finance-assistant/internal/reasoning"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/rs/zerolog"
)

const eventBufferSize = 100

// App is a fully wired assistant. Close releases every client it opened.
type App struct {
	Gateway     *assistant.Gateway
	Ledger      ledger.Ledger
	Attachments attachments.Store
	Publisher   events.Publisher

	closers []io.Closer
}

type options struct {
	backend reasoning.Backend
	ledger  ledger.Ledger
}

// Option overrides a component that would otherwise be built from config.
type Option func(*options)

// WithBackend uses b instead of a Gemini client.
func WithBackend(b reasoning.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithLedger uses l instead of the configured ledger backend.
func WithLedger(l ledger.Ledger) Option {
	return func(o *options) { o.ledger = l }
}

// New builds the assistant. ctx bounds the lifetime of the in-process event
// bus workers.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	// 1. Ledger
	switch {
	case o.ledger != nil:
		a.Ledger = o.ledger
	case cfg.LedgerBackend == config.LedgerBigQuery:
		l, err := infraBQ.NewLedger(ctx, infraBQ.Config{
			ProjectID: cfg.BigQueryProject,
			DatasetID: cfg.BigQueryDataset,
			Currency:  cfg.DefaultCurrency,
		}, log)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		a.Ledger = l
		a.closers = append(a.closers, l)
	default:
		log.Warn().Msg("Using the in-memory ledger; data is lost on restart")
		a.Ledger = ledgermem.NewSeededLedger()
	}

	// 2. Attachments
	if cfg.AttachmentsBucket != "" {
		store, err := attachments.NewGCSStore(ctx, cfg.AttachmentsBucket)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		a.Attachments = store
		a.closers = append(a.closers, store)
	} else {
		a.Attachments = attachments.NewMemoryStore()
	}

	// 3. Reasoning backend
	backend := o.backend
	if backend == nil {
		gemini, err := reasoning.NewGeminiBackend(ctx, reasoning.GeminiConfig{
			Model:  cfg.GeminiModel,
			APIKey: cfg.GeminiAPIKey,
		}, reasoning.WithImageLoader(a.Attachments.Fetch))
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		backend = gemini
	}
	backend = reasoning.WithTimeout(backend, cfg.ReasoningTimeout)

	// 4. Proposal events
	if cfg.AMQPURL != "" {
		client, err := events.NewAMQPClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, log)
		if err != nil {
			return fail(fmt.Errorf("app.New: %w", err))
		}
		a.Publisher = client
	} else {
		bus := eventsmem.NewBus(eventBufferSize, log)
		if err := bus.Start(ctx, events.Audit(log)); err != nil {
			return fail(fmt.Errorf("app.New: starting event bus: %w", err))
		}
		a.Publisher = bus
	}

	// 5. Tools and gateway
	registry, err := tools.NewRegistry(a.Ledger)
	if err != nil {
		return fail(fmt.Errorf("app.New: %w", err))
	}

	a.Gateway = assistant.NewGateway(
		assistant.Dependencies{
			Ledger:    a.Ledger,
			Registry:  registry,
			Backend:   backend,
			Publisher: a.Publisher,
			Log:       log,
		},
		assistant.WithSettings(assistant.Settings{
			MaxIterations:    cfg.MaxToolIterations,
			HistoryLimit:     cfg.HistoryLimit,
			BatchConcurrency: cfg.BatchConcurrency,
		}),
		assistant.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		assistant.WithAttachments(a.Attachments),
	)
	return a, nil
}

// Close stops event delivery and closes the clients in reverse order of
// creation.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing publisher: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

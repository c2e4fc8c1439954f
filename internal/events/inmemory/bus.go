package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/finance-assistant/internal/events"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when publishing to a stopped bus.
var ErrClosed = errors.New("event bus is closed")

// Bus is an in-memory implementation of events.Publisher with a consumer
// side. It uses Go channels for delivery and is safe for concurrent use.
// Suitable for single-instance deployments, the CLI and tests.
type Bus struct {
	ch         chan *events.Event
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	workers    int
	maxRetries int
	backoff    time.Duration
	log        zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithWorkers sets how many handlers run concurrently.
func WithWorkers(n int) Option {
	return func(b *Bus) { b.workers = n }
}

// WithRetries sets how often a failing handler is retried and the base
// backoff, which grows linearly with each attempt.
func WithRetries(max int, backoff time.Duration) Option {
	return func(b *Bus) {
		b.maxRetries = max
		b.backoff = backoff
	}
}

// NewBus creates a new in-memory bus. bufferSize determines how many events
// can be queued before Publish blocks.
func NewBus(bufferSize int, log zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		ch:         make(chan *events.Event, bufferSize),
		closeChan:  make(chan struct{}),
		workers:    2,
		maxRetries: 3,
		backoff:    time.Second,
		log:        log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements the events.Publisher interface.
func (b *Bus) Publish(ctx context.Context, e *events.Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closeChan:
		return ErrClosed
	}
}

// Start launches the workers that hand events to handler.
func (b *Bus) Start(ctx context.Context, handler events.Handler) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, handler)
	}
	return nil
}

func (b *Bus) worker(ctx context.Context, handler events.Handler) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closeChan:
			return
		case e := <-b.ch:
			if e == nil {
				return
			}
			b.deliver(ctx, e, handler)
		}
	}
}

// deliver runs handler with bounded retries. Delivery gives up when the bus
// stops or the retries are exhausted.
func (b *Bus) deliver(ctx context.Context, e *events.Event, handler events.Handler) {
	for attempt := 0; ; attempt++ {
		err := handler(ctx, e)
		if err == nil {
			return
		}
		if attempt >= b.maxRetries {
			b.log.Error().Err(err).
				Str("event", string(e.Event)).
				Str("proposal_id", e.ProposalID).
				Int("attempts", attempt+1).
				Msg("Dropping proposal event")
			return
		}

		select {
		case <-time.After(time.Duration(attempt+1) * b.backoff):
		case <-ctx.Done():
			return
		case <-b.closeChan:
			return
		}
	}
}

// Stop stops the bus and waits for in-flight handlers to complete.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeChan)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the events.Publisher interface.
func (b *Bus) Close() error {
	return b.Stop(context.Background())
}

// Ensure Bus implements events.Publisher interface.
var _ events.Publisher = (*Bus)(nil)

package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-assistant/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(10, zerolog.Nop())
	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Start(ctx, func(ctx context.Context, e *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.ProposalID)
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, &events.Event{Event: events.KindConfirmed, ProposalID: "p1"}))
	require.NoError(t, bus.Publish(ctx, &events.Event{Event: events.KindDiscarded, ProposalID: "p2"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Stop(context.Background()))
}

func TestBus_RetriesFailingHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(1, zerolog.Nop(), WithWorkers(1), WithRetries(2, time.Millisecond))
	var calls atomic.Int32
	require.NoError(t, bus.Start(ctx, func(ctx context.Context, e *events.Event) error {
		if calls.Add(1) < 3 {
			return errors.New("sink unavailable")
		}
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, &events.Event{ProposalID: "p1"}))
	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Stop(context.Background()))
}

func TestBus_PublishAfterStop(t *testing.T) {
	bus := NewBus(1, zerolog.Nop())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), &events.Event{ProposalID: "p1"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, bus.Stop(context.Background()))
}

func TestBus_PublishRespectsContext(t *testing.T) {
	bus := NewBus(0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Publish(ctx, &events.Event{ProposalID: "p1"})
	assert.ErrorIs(t, err, context.Canceled)
}

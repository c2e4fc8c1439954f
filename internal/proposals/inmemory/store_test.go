package inmemory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/proposals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	var n int64
	return func() time.Time {
		return start.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("p%d", atomic.AddInt64(&n, 1))
	}
}

func newTestStore() *Store {
	return NewStore("conv-1",
		WithClock(fixedClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))),
		WithIDGenerator(sequentialIDs()),
	)
}

func coffee() *domain.TransactionPayload {
	return &domain.TransactionPayload{
		Date:        "2024-06-01",
		Type:        domain.TransactionTypeExpense,
		Amount:      35000,
		AccountID:   domain.StringPtr("acc_1"),
		Description: "coffee",
		Tags:        []string{},
	}
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	p, err := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "msg-1")
	require.NoError(t, err)

	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "conv-1", p.ConversationID)
	assert.Equal(t, "msg-1", p.MessageID)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, p.Payload, p.OriginalPayload)
	assert.Nil(t, p.RevisedPayload)
	assert.Nil(t, p.AppliedAt)
	assert.Nil(t, p.ResultID)
}

func TestStore_CreateRejectsMismatchedType(t *testing.T) {
	s := newTestStore()

	_, err := s.Create(context.Background(), domain.ProposalTypeBudget, coffee(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_CallerCannotMutateStoredPayload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	payload := coffee()

	p, err := s.Create(ctx, domain.ProposalTypeTransaction, payload, "")
	require.NoError(t, err)

	payload.Amount = 1
	p.Payload.(*domain.TransactionPayload).Amount = 2

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 35000.0, got.Payload.(*domain.TransactionPayload).Amount)
	assert.Equal(t, 35000.0, got.OriginalPayload.(*domain.TransactionPayload).Amount)
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := newTestStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Revise(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")

	edit := coffee()
	edit.Amount = 40000
	revised, err := s.Revise(ctx, p.ID, edit)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRevised, revised.Status)
	assert.Equal(t, 40000.0, revised.Payload.(*domain.TransactionPayload).Amount)
	assert.Equal(t, 40000.0, revised.RevisedPayload.(*domain.TransactionPayload).Amount)
	assert.Equal(t, 35000.0, revised.OriginalPayload.(*domain.TransactionPayload).Amount)

	edit.Amount = 45000
	again, err := s.Revise(ctx, p.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRevised, again.Status)
	assert.Equal(t, 45000.0, again.Payload.(*domain.TransactionPayload).Amount)
}

func TestStore_ReviseRejectsOtherPayloadType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")

	_, err := s.Revise(ctx, p.ID, &domain.BudgetPayload{Month: "2024-06"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_TerminalStates(t *testing.T) {
	tests := []struct {
		name   string
		finish func(s *Store, id string) error
	}{
		{
			name: "confirmed",
			finish: func(s *Store, id string) error {
				_, err := s.Confirm(context.Background(), id, "tx-1")
				return err
			},
		},
		{
			name: "discarded",
			finish: func(s *Store, id string) error {
				_, err := s.Discard(context.Background(), id)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore()
			p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")
			require.NoError(t, tt.finish(s, p.ID))

			_, err := s.Revise(ctx, p.ID, coffee())
			assert.ErrorIs(t, err, domain.ErrInvalidState)
			_, err = s.Confirm(ctx, p.ID, "tx-2")
			assert.ErrorIs(t, err, domain.ErrInvalidState)
			_, err = s.Discard(ctx, p.ID)
			assert.ErrorIs(t, err, domain.ErrInvalidState)
			_, err = s.BeginApply(ctx, p.ID)
			assert.ErrorIs(t, err, domain.ErrInvalidState)
		})
	}
}

func TestStore_Confirm(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")

	confirmed, err := s.Confirm(ctx, p.ID, "tx-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.AppliedAt)
	require.NotNil(t, confirmed.ResultID)
	assert.Equal(t, "tx-1", *confirmed.ResultID)
}

func TestStore_ListPendingOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	a, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "m1")
	b, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "m1")
	c, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "m2")
	d, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "m2")

	_, err := s.Revise(ctx, b.ID, coffee())
	require.NoError(t, err)
	_, err = s.Confirm(ctx, c.ID, "tx-1")
	require.NoError(t, err)
	_, err = s.Discard(ctx, d.ID)
	require.NoError(t, err)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, b.ID, pending[1].ID)

	// confirmed and discarded stay retrievable
	_, err = s.Get(ctx, c.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, d.ID)
	assert.NoError(t, err)

	byMessage, err := s.List(ctx, proposals.Filter{MessageID: "m2"})
	require.NoError(t, err)
	assert.Len(t, byMessage, 2)

	paged, err := s.List(ctx, proposals.Filter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, b.ID, paged[0].ID)
	assert.Equal(t, c.ID, paged[1].ID)
}

func TestStore_ListPendingTieBreaksOnInsertion(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore("c", WithClock(func() time.Time { return frozen }))

	var ids []string
	for i := 0; i < 5; i++ {
		p, err := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	for i, p := range pending {
		assert.Equal(t, ids[i], p.ID)
	}
}

func TestStore_ApplyReservation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")

	_, err := s.BeginApply(ctx, p.ID)
	require.NoError(t, err)

	_, err = s.BeginApply(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = s.Revise(ctx, p.ID, coffee())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = s.Discard(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, s.AbortApply(ctx, p.ID))
	got, _ := s.Get(ctx, p.ID)
	assert.Equal(t, domain.StatusPending, got.Status)

	_, err = s.FinishApply(ctx, p.ID, "tx-1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "finishing without a reservation")

	_, err = s.BeginApply(ctx, p.ID)
	require.NoError(t, err)
	done, err := s.FinishApply(ctx, p.ID, "tx-1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, done.Status)
	assert.Equal(t, "tx-1", *done.ResultID)
}

func TestStore_ConcurrentBeginApplyHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewStore("c")
	p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginApply(ctx, p.ID); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	p, _ := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")

	require.NoError(t, s.Reset(ctx))

	_, err := s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	pending, _ := s.ListPending(ctx)
	assert.Empty(t, pending)
}

func TestStore_ResetWaitsForApply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	p, err := s.Create(ctx, domain.ProposalTypeTransaction, coffee(), "")
	require.NoError(t, err)

	_, err = s.BeginApply(ctx, p.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Reset(ctx), domain.ErrBusy)

	confirmed, err := s.FinishApply(ctx, p.ID, "tx-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", *confirmed.ResultID)

	require.NoError(t, s.Reset(ctx))
	_, err = s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

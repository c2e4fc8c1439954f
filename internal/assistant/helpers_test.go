package assistant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/events"
	ledgermem "github.com/dvloznov/finance-assistant/internal/ledger/inmemory"
	"github.com/dvloznov/finance-assistant/internal/reasoning"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

func testLedger() *ledgermem.Ledger {
	l := ledgermem.NewLedger()
	l.AddAccount(domain.Account{ID: "acc_1", Name: "Cash", Type: "cash", Currency: "IDR", Balance: 100000})
	l.AddAccount(domain.Account{ID: "acc_2", Name: "BCA", Type: "bank", Currency: "IDR", Balance: 5000000})
	l.AddCategory(domain.Category{ID: "cat_food", Name: "Food & Drinks", Type: domain.TransactionTypeExpense})
	l.AddCategory(domain.Category{ID: "cat_transport", Name: "Transport", Type: domain.TransactionTypeExpense})
	l.AddCategory(domain.Category{ID: "cat_salary", Name: "Salary", Type: domain.TransactionTypeIncome})
	l.AddCategory(domain.Category{ID: "cat_tout", Name: "Transfer Out", Type: domain.TransactionTypeExpense, IsSystem: true})
	return l
}

func testRegistry(t *testing.T, l *ledgermem.Ledger) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(l, tools.WithClock(fixedNow))
	require.NoError(t, err)
	return r
}

// mockBackend answers Complete with CompleteFunc and records every request.
// n is the zero-based index of the call.
type mockBackend struct {
	mu           sync.Mutex
	requests     []reasoning.Request
	CompleteFunc func(ctx context.Context, req reasoning.Request, n int) (*reasoning.Reply, error)
}

func (m *mockBackend) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Reply, error) {
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req, n)
}

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockBackend) request(n int) reasoning.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[n]
}

// scripted replays replies in order and repeats the last one.
func scripted(replies ...*reasoning.Reply) *mockBackend {
	return &mockBackend{CompleteFunc: func(ctx context.Context, req reasoning.Request, n int) (*reasoning.Reply, error) {
		if n >= len(replies) {
			n = len(replies) - 1
		}
		return replies[n], nil
	}}
}

func call(id, name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: args}
}

// mockWriter counts every ledger mutation. A nil Func delegates to the
// embedded ledger.
type mockWriter struct {
	*ledgermem.Ledger

	mu    sync.Mutex
	count int
	plans []domain.BudgetPlan
	txs   []domain.NewTransaction

	CreateTransactionFunc func(ctx context.Context, tx domain.NewTransaction) (string, error)
	ApplyBudgetPlanFunc   func(ctx context.Context, plan domain.BudgetPlan) ([]string, error)
	MergeCategoriesFunc   func(ctx context.Context, sourceID, targetID string) error
}

func newMockWriter(l *ledgermem.Ledger) *mockWriter {
	return &mockWriter{Ledger: l}
}

func (m *mockWriter) mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *mockWriter) record(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	if fn != nil {
		fn()
	}
}

func (m *mockWriter) CreateTransaction(ctx context.Context, tx domain.NewTransaction) (string, error) {
	m.record(func() { m.txs = append(m.txs, tx) })
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, tx)
	}
	return m.Ledger.CreateTransaction(ctx, tx)
}

func (m *mockWriter) CreateTransfer(ctx context.Context, tr domain.NewTransfer) (string, error) {
	m.record(nil)
	return m.Ledger.CreateTransfer(ctx, tr)
}

func (m *mockWriter) ApplyBudgetPlan(ctx context.Context, plan domain.BudgetPlan) ([]string, error) {
	m.record(func() { m.plans = append(m.plans, plan) })
	if m.ApplyBudgetPlanFunc != nil {
		return m.ApplyBudgetPlanFunc(ctx, plan)
	}
	return m.Ledger.ApplyBudgetPlan(ctx, plan)
}

func (m *mockWriter) CreateCategory(ctx context.Context, c domain.NewCategory) (string, error) {
	m.record(nil)
	return m.Ledger.CreateCategory(ctx, c)
}

func (m *mockWriter) RenameCategory(ctx context.Context, id, name string) error {
	m.record(nil)
	return m.Ledger.RenameCategory(ctx, id, name)
}

func (m *mockWriter) DeleteCategory(ctx context.Context, id string) error {
	m.record(nil)
	return m.Ledger.DeleteCategory(ctx, id)
}

func (m *mockWriter) MergeCategories(ctx context.Context, sourceID, targetID string) error {
	m.record(nil)
	if m.MergeCategoriesFunc != nil {
		return m.MergeCategoriesFunc(ctx, sourceID, targetID)
	}
	return m.Ledger.MergeCategories(ctx, sourceID, targetID)
}

// recordingPublisher keeps published events and optionally fails.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []events.Kind
	for _, e := range p.events {
		kinds = append(kinds, e.Event)
	}
	return kinds
}

var nopLog = zerolog.Nop()

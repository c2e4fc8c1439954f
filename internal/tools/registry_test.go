package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/ledger/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

// testLedger seeds two accounts, a few user categories and one system
// category per type.
func testLedger() *inmemory.Ledger {
	l := inmemory.NewLedger()
	l.AddAccount(domain.Account{ID: "acc_cash", Name: "Cash", Type: "cash", Currency: "IDR", Balance: 150000})
	l.AddAccount(domain.Account{ID: "acc_bca", Name: "BCA Savings", Type: "bank", Currency: "IDR", Balance: 2000000})
	l.AddCategory(domain.Category{ID: "cat_food", Name: "Food & Drinks", Type: domain.TransactionTypeExpense, Color: "#f97316", Icon: "Utensils"})
	l.AddCategory(domain.Category{ID: "cat_transport", Name: "Transport", Type: domain.TransactionTypeExpense, Color: "#0ea5e9", Icon: "Car"})
	l.AddCategory(domain.Category{ID: "cat_salary", Name: "Salary", Type: domain.TransactionTypeIncome})
	l.AddCategory(domain.Category{ID: "cat_tout", Name: "Transfer Out", Type: domain.TransactionTypeExpense, IsSystem: true})
	l.AddCategory(domain.Category{ID: "cat_tin", Name: "Transfer In", Type: domain.TransactionTypeIncome, IsSystem: true})
	return l
}

func newTestRegistry(t *testing.T, l *inmemory.Ledger) *Registry {
	t.Helper()
	r, err := NewRegistry(l, WithClock(fixedNow))
	require.NoError(t, err)
	return r
}

func TestRegistry_CapabilityTable(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	tests := []struct {
		name     string
		kind     Kind
		propType domain.ProposalType
	}{
		{GetTransactions, KindReadOnly, ""},
		{GetBudgetOverview, KindReadOnly, ""},
		{GetCashflowSummary, KindReadOnly, ""},
		{GetAccounts, KindReadOnly, ""},
		{GetCategories, KindReadOnly, ""},
		{ProposeTransaction, KindProposal, domain.ProposalTypeTransaction},
		{ProposeBudgetPlan, KindProposal, domain.ProposalTypeBudget},
		{ProposeCategoryChanges, KindProposal, domain.ProposalTypeCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := r.Capability(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.propType, c.ProposalType)
		})
	}

	_, ok := r.Capability("propose_vacation")
	assert.False(t, ok)
}

func TestRegistry_Definitions(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	defs := r.Definitions()
	require.Len(t, defs, 8)
	assert.Equal(t, GetTransactions, defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])

	defs[0].Name = "mutated"
	assert.Equal(t, GetTransactions, r.Definitions()[0].Name)
}

func TestRegistry_ValidateNormalizesArguments(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	args, err := r.Validate(GetTransactions, map[string]any{"limit": 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, args["limit"])
}

func TestRegistry_ValidateReportsField(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	tests := []struct {
		name  string
		tool  string
		args  map[string]any
		field string
	}{
		{"bad enum", GetTransactions, map[string]any{"type": "refund"}, "type"},
		{"unknown argument", GetBudgetOverview, map[string]any{"year": 2024}, "arguments"},
		{"bad month", GetBudgetOverview, map[string]any{"month": "June"}, "month"},
		{"missing required", ProposeTransaction, map[string]any{}, "arguments"},
		{"wrong type", ProposeBudgetPlan, map[string]any{"income": "lots"}, "income"},
		{"nested item", ProposeBudgetPlan, map[string]any{
			"income":             1000.0,
			"mandatory_payments": []any{map[string]any{"name": "rent", "amount": -1.0}},
		}, "mandatory_payments.0.amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(tt.tool, tt.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	_, err := r.Execute(context.Background(), domain.ToolCall{ID: "1", Name: "propose_vacation"})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

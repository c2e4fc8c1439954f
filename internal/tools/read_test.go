package tools

import (
	"context"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransactions(t *testing.T) {
	ctx := context.Background()
	l := testLedger()
	for _, desc := range []string{"coffee", "bus", "coffee beans"} {
		_, err := l.CreateTransaction(ctx, domain.NewTransaction{
			Date: "2024-06-10", Type: domain.TransactionTypeExpense, Amount: 10000,
			Description: desc, CategoryID: "cat_food", AccountID: "acc_cash",
		})
		require.NoError(t, err)
	}
	r := newTestRegistry(t, l)

	out, err := r.Execute(ctx, domain.ToolCall{Name: GetTransactions, Arguments: map[string]any{"search": "coffee"}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Data["total_count"])
	assert.Empty(t, out.Drafts)

	txs := out.Data["transactions"].([]map[string]any)
	assert.Equal(t, "Food & Drinks", txs[0]["category_name"])
	assert.Equal(t, "Cash", txs[0]["account_name"])
}

func TestGetTransactions_LimitIsCapped(t *testing.T) {
	ctx := context.Background()
	l := testLedger()
	for i := 0; i < 120; i++ {
		_, err := l.CreateTransaction(ctx, domain.NewTransaction{Date: "2024-06-01", Type: domain.TransactionTypeExpense, Amount: 1})
		require.NoError(t, err)
	}
	r := newTestRegistry(t, l)

	out, err := r.Execute(ctx, domain.ToolCall{Name: GetTransactions, Arguments: map[string]any{"limit": 500}})
	require.NoError(t, err)
	assert.Equal(t, 100, out.Data["total_count"])

	out, err = r.Execute(ctx, domain.ToolCall{Name: GetTransactions})
	require.NoError(t, err)
	assert.Equal(t, 20, out.Data["total_count"])
}

func TestBudgetStatus(t *testing.T) {
	assert.Equal(t, "on_track", budgetStatus(79.9))
	assert.Equal(t, "warning", budgetStatus(80))
	assert.Equal(t, "warning", budgetStatus(99.9))
	assert.Equal(t, "over_budget", budgetStatus(100))
	assert.Equal(t, "over_budget", budgetStatus(140))
}

func TestGetBudgetOverview_DefaultsToCurrentMonth(t *testing.T) {
	ctx := context.Background()
	l := testLedger()
	l.AddBudget(domain.Budget{ID: "b1", CategoryID: "cat_food", Month: "2024-06", Limit: 1000000})
	l.AddBudget(domain.Budget{ID: "b2", CategoryID: "cat_transport", Month: "2024-05", Limit: 500000})
	_, err := l.CreateTransaction(ctx, domain.NewTransaction{
		Date: "2024-06-03", Type: domain.TransactionTypeExpense, Amount: 850000, CategoryID: "cat_food",
	})
	require.NoError(t, err)
	r := newTestRegistry(t, l)

	out, err := r.Execute(ctx, domain.ToolCall{Name: GetBudgetOverview})
	require.NoError(t, err)
	assert.Equal(t, "2024-06", out.Data["month"])

	budgets := out.Data["budgets"].([]map[string]any)
	require.Len(t, budgets, 1)
	assert.Equal(t, 150000.0, budgets[0]["remaining"])
	assert.Equal(t, 85.0, budgets[0]["percentage_used"])
	assert.Equal(t, "warning", budgets[0]["status"])
	assert.Equal(t, 1000000.0, out.Data["total_budget"])
}

func TestGetCashflowSummary_Periods(t *testing.T) {
	ctx := context.Background()
	l := testLedger()
	_, err := l.CreateTransaction(ctx, domain.NewTransaction{Date: "2024-06-12", Type: domain.TransactionTypeIncome, Amount: 300, CategoryID: "cat_salary"})
	require.NoError(t, err)
	_, err = l.CreateTransaction(ctx, domain.NewTransaction{Date: "2024-06-02", Type: domain.TransactionTypeExpense, Amount: 100, CategoryID: "cat_food"})
	require.NoError(t, err)
	r := newTestRegistry(t, l)

	out, err := r.Execute(ctx, domain.ToolCall{Name: GetCashflowSummary})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", out.Data["date_from"])
	assert.Equal(t, "2024-06-15", out.Data["date_to"])
	assert.Equal(t, 200.0, out.Data["net"])

	out, err = r.Execute(ctx, domain.ToolCall{Name: GetCashflowSummary, Arguments: map[string]any{"period": "week"}})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-08", out.Data["date_from"])
	assert.Equal(t, 0.0, out.Data["expense"])

	_, err = r.Execute(ctx, domain.ToolCall{Name: GetCashflowSummary, Arguments: map[string]any{"period": "custom", "date_from": "2024-06-01"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetCategories_HidesSystemByDefault(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, testLedger())

	out, err := r.Execute(ctx, domain.ToolCall{Name: GetCategories})
	require.NoError(t, err)
	assert.Len(t, out.Data["expense_categories"], 2)
	assert.Len(t, out.Data["income_categories"], 1)

	out, err = r.Execute(ctx, domain.ToolCall{Name: GetCategories, Arguments: map[string]any{"include_system": true}})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Data["total_count"])
}

func TestGetAccounts(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	out, err := r.Execute(context.Background(), domain.ToolCall{Name: GetAccounts})
	require.NoError(t, err)
	assert.Equal(t, 2150000.0, out.Data["total_balance"])
	assert.Len(t, out.Data["accounts"], 2)
}

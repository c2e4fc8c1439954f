package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proposeTx(t *testing.T, r *Registry, args map[string]any) *domain.TransactionPayload {
	t.Helper()
	out, err := r.Execute(context.Background(), domain.ToolCall{ID: "call_1", Name: ProposeTransaction, Arguments: args})
	require.NoError(t, err)
	require.Len(t, out.Drafts, 1)
	assert.Equal(t, domain.ProposalTypeTransaction, out.Drafts[0].Type)
	return out.Drafts[0].Payload.(*domain.TransactionPayload)
}

func TestProposeTransaction_FromText(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	p := proposeTx(t, r, map[string]any{"source_text": "beli kopi 35k", "category_hint": "food"})
	assert.Equal(t, 35000.0, p.Amount)
	assert.Equal(t, domain.TransactionTypeExpense, p.Type)
	assert.Equal(t, "cat_food", domain.StringValue(p.CategoryID))
	assert.Equal(t, "acc_cash", domain.StringValue(p.AccountID))
	assert.Equal(t, "beli kopi 35k", p.Description)
	assert.Equal(t, "2024-06-15", p.Date)
	assert.Equal(t, []string{}, p.Tags)
}

func TestProposeTransaction_ExplicitArguments(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	p := proposeTx(t, r, map[string]any{
		"source_text":      "gaji bulan ini",
		"amount":           "7.500.000",
		"transaction_type": "income",
		"account_hint":     "bca",
		"description":      "June salary",
		"fallback_date":    "2024-06-01",
	})
	assert.Equal(t, 7500000.0, p.Amount)
	assert.Equal(t, domain.TransactionTypeIncome, p.Type)
	assert.Equal(t, "cat_salary", domain.StringValue(p.CategoryID))
	assert.Equal(t, "BCA Savings", domain.StringValue(p.AccountName))
	assert.Equal(t, "June salary", p.Description)
	assert.Equal(t, "2024-06-01", p.Date)
}

func TestProposeTransaction_ExactMatchBeatsPartial(t *testing.T) {
	l := testLedger()
	l.AddCategory(domain.Category{ID: "cat_trans", Name: "Trans", Type: domain.TransactionTypeExpense})
	r := newTestRegistry(t, l)

	p := proposeTx(t, r, map[string]any{"source_text": "ojek 20rb", "category_hint": "trans"})
	assert.Equal(t, "cat_trans", domain.StringValue(p.CategoryID))
}

func TestProposeTransaction_DescriptionTruncated(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	long := "bayar 50rb " + strings.Repeat("é", 300)
	p := proposeTx(t, r, map[string]any{"source_text": long})
	assert.Len(t, []rune(p.Description), 200)
}

func TestProposeTransaction_MissingAmount(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	_, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeTransaction, Arguments: map[string]any{"source_text": "beli kopi"}})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "amount", ve.Field)
}

func TestProposeBudgetPlan(t *testing.T) {
	l := testLedger()
	l.AddBudget(domain.Budget{ID: "b1", CategoryID: "cat_transport", Month: "2024-07", Limit: 400000})
	r := newTestRegistry(t, l)

	out, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeBudgetPlan, Arguments: map[string]any{
		"income":             10000000,
		"target_savings":     2000000,
		"mandatory_payments": []any{map[string]any{"name": "rent", "amount": 3000000}},
		"month":              "2024-07",
	}})
	require.NoError(t, err)
	require.Len(t, out.Drafts, 1)

	p := out.Drafts[0].Payload.(*domain.BudgetPayload)
	assert.Equal(t, "2024-07", p.Month)
	assert.Equal(t, 5000000.0, p.AvailableForBudgets)
	require.Len(t, p.Allocations, 2)

	assert.Equal(t, "cat_food", p.Allocations[0].CategoryID)
	assert.Equal(t, 2500000.0, p.Allocations[0].SuggestedAmount)
	assert.False(t, p.Allocations[0].HasExisting)

	assert.Equal(t, "cat_transport", p.Allocations[1].CategoryID)
	assert.Equal(t, 400000.0, p.Allocations[1].SuggestedAmount)
	assert.True(t, p.Allocations[1].HasExisting)
}

func TestProposeBudgetPlan_RoundsAndDefaultsMonth(t *testing.T) {
	l := testLedger()
	l.AddCategory(domain.Category{ID: "cat_fun", Name: "Fun", Type: domain.TransactionTypeExpense})
	r := newTestRegistry(t, l)

	out, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeBudgetPlan, Arguments: map[string]any{"income": 1000}})
	require.NoError(t, err)

	p := out.Drafts[0].Payload.(*domain.BudgetPayload)
	assert.Equal(t, "2024-06", p.Month)
	for _, a := range p.Allocations {
		assert.Equal(t, 333.0, a.SuggestedAmount)
	}
}

func TestProposeBudgetPlan_Errors(t *testing.T) {
	t.Run("nothing left", func(t *testing.T) {
		r := newTestRegistry(t, testLedger())
		_, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeBudgetPlan, Arguments: map[string]any{
			"income": 1000, "target_savings": 1000,
		}})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "income", ve.Field)
	})

	t.Run("no expense categories", func(t *testing.T) {
		l := testLedger()
		require.NoError(t, l.DeleteCategory(context.Background(), "cat_food"))
		require.NoError(t, l.DeleteCategory(context.Background(), "cat_transport"))
		r := newTestRegistry(t, l)

		_, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeBudgetPlan, Arguments: map[string]any{"income": 1000}})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "categories", ve.Field)
	})
}

func TestProposeCategoryChanges_PartialSuccess(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	out, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeCategoryChanges, Arguments: map[string]any{
		"changes": []any{
			map[string]any{"action": "create", "category_name": "Pets"},
			map[string]any{"action": "create", "category_name": "transport"},
			map[string]any{"action": "rename", "category_id": "cat_food", "new_name": "Meals"},
			map[string]any{"action": "delete", "category_id": "cat_tout"},
			map[string]any{"action": "merge", "category_id": "cat_transport", "merge_into_id": "cat_food"},
			map[string]any{"action": "archive", "category_id": "cat_food"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, out.Drafts, 3)
	require.Len(t, out.Warnings, 3)
	assert.Contains(t, out.Warnings[0], "already exists")
	assert.Contains(t, out.Warnings[1], "system category")
	assert.Contains(t, out.Warnings[2], "Unknown action")

	create := out.Drafts[0].Payload.(*domain.CategoryPayload).Change.(domain.CreateCategory)
	assert.Equal(t, domain.CreateCategory{Name: "Pets", Type: domain.TransactionTypeExpense, Color: "#6366f1", Icon: "Tag"}, create)

	rename := out.Drafts[1].Payload.(*domain.CategoryPayload).Change.(domain.RenameCategory)
	assert.Equal(t, "Food & Drinks", rename.CurrentName)

	merge := out.Drafts[2].Payload.(*domain.CategoryPayload).Change.(domain.MergeCategory)
	assert.Equal(t, "Transport", merge.SourceCategoryName)
	assert.Equal(t, "Food & Drinks", merge.TargetCategoryName)
}

func TestProposeCategoryChanges_AllFail(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	_, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeCategoryChanges, Arguments: map[string]any{
		"changes": []any{
			map[string]any{"action": "delete", "category_id": "missing"},
			map[string]any{"action": "merge", "category_id": "cat_food", "merge_into_id": "cat_food"},
		},
	}})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, err.Error(), "into itself")
}

func TestProposeCategoryChanges_DuplicateCreateInOneBatch(t *testing.T) {
	r := newTestRegistry(t, testLedger())

	out, err := r.Execute(context.Background(), domain.ToolCall{Name: ProposeCategoryChanges, Arguments: map[string]any{
		"changes": []any{
			map[string]any{"action": "create", "category_name": "Gym", "icon": "Dumbbell"},
			map[string]any{"action": "create", "category_name": "gym"},
		},
	}})
	require.NoError(t, err)
	assert.Len(t, out.Drafts, 1)
	assert.Len(t, out.Warnings, 1)
}

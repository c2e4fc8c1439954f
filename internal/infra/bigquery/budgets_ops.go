package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

// ListBudgets implements the ledger.Reader interface.
func (l *Ledger) ListBudgets(ctx context.Context, month string) ([]domain.Budget, error) {
	q := l.query(`
		SELECT
			b.budget_id,
			b.category_id,
			c.name AS category_name,
			b.month,
			b.amount,
			IFNULL((
				SELECT SUM(t.amount)
				FROM {transactions} t
				WHERE t.category_id = b.category_id
				  AND t.type = 'expense'
				  AND FORMAT_DATE('%Y-%m', t.transaction_date) = b.month
			), 0) AS spent
		FROM {budgets} b
		LEFT JOIN {categories} c ON c.category_id = b.category_id
		WHERE b.month = @month
		ORDER BY c.name
	`, bigquery.QueryParameter{Name: "month", Value: month})

	rows, err := readAll[BudgetRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListBudgets: %w", err)
	}

	budgets := make([]domain.Budget, 0, len(rows))
	for i := range rows {
		budgets = append(budgets, rows[i].toDomain())
	}
	return budgets, nil
}

// ApplyBudgetPlan implements the ledger.Writer interface. Existing budgets of
// the month are updated in place, the rest are inserted, all by one MERGE.
func (l *Ledger) ApplyBudgetPlan(ctx context.Context, plan domain.BudgetPlan) ([]string, error) {
	// 1. Look up live categories and existing budgets of the month
	var ids []string
	for _, a := range plan.Allocations {
		if a.Amount > 0 {
			ids = append(ids, a.CategoryID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	lookup := l.query(`
		SELECT
			c.category_id,
			b.budget_id
		FROM {categories} c
		LEFT JOIN {budgets} b
		  ON b.category_id = c.category_id AND b.month = @month
		WHERE c.category_id IN UNNEST(@category_ids)
		  AND IFNULL(c.is_active, TRUE)
	`,
		bigquery.QueryParameter{Name: "month", Value: plan.Month},
		bigquery.QueryParameter{Name: "category_ids", Value: ids},
	)
	found, err := readAll[budgetLookupRow](ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("ApplyBudgetPlan: looking up budgets: %w", err)
	}

	live := make(map[string]bool, len(found))
	existing := make(map[string]string)
	for _, r := range found {
		live[r.CategoryID] = true
		if r.BudgetID.Valid {
			existing[r.CategoryID] = r.BudgetID.StringVal
		}
	}
	for _, id := range ids {
		if !live[id] {
			return nil, fmt.Errorf("ApplyBudgetPlan: category %s does not exist", id)
		}
	}

	// 2. Upsert
	rows := planRows(plan, existing, l.newID)
	q := l.query(`
		MERGE {budgets} t
		USING UNNEST(@rows) s
		ON t.budget_id = s.budget_id
		WHEN MATCHED THEN
		  UPDATE SET amount = s.amount, updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
		  INSERT (budget_id, category_id, month, amount, created_ts)
		  VALUES (s.budget_id, s.category_id, @month, s.amount, CURRENT_TIMESTAMP())
	`,
		bigquery.QueryParameter{Name: "rows", Value: rows},
		bigquery.QueryParameter{Name: "month", Value: plan.Month},
	)
	if _, err := l.exec(ctx, q); err != nil {
		return nil, fmt.Errorf("ApplyBudgetPlan: %w", err)
	}

	result := make([]string, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.BudgetID)
	}
	l.log.Info().Str("month", plan.Month).Int("budgets", len(result)).Msg("Budget plan applied")
	return result, nil
}

type budgetLookupRow struct {
	CategoryID string              `bigquery:"category_id"`
	BudgetID   bigquery.NullString `bigquery:"budget_id"`
}

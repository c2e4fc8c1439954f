package bigquery

import (
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

type BudgetRow struct {
	BudgetID     string              `bigquery:"budget_id"`     // REQUIRED
	CategoryID   string              `bigquery:"category_id"`   // REQUIRED
	CategoryName bigquery.NullString `bigquery:"category_name"` // joined from categories
	Month        string              `bigquery:"month"`         // REQUIRED, YYYY-MM
	Amount       *big.Rat            `bigquery:"amount"`        // REQUIRED NUMERIC
	Spent        *big.Rat            `bigquery:"spent"`         // computed
}

func (r *BudgetRow) toDomain() domain.Budget {
	return domain.Budget{
		ID:           r.BudgetID,
		CategoryID:   r.CategoryID,
		CategoryName: r.CategoryName.StringVal,
		Month:        r.Month,
		Limit:        ratFloat(r.Amount),
		Spent:        ratFloat(r.Spent),
	}
}

// budgetMergeRow is one source row of the budget MERGE.
type budgetMergeRow struct {
	BudgetID   string   `bigquery:"budget_id"`
	CategoryID string   `bigquery:"category_id"`
	Amount     *big.Rat `bigquery:"amount"`
}

// planRows turns a plan into MERGE rows. Non-positive allocations are
// skipped, a repeated category keeps its last amount, and existing budgets
// keep their id.
func planRows(plan domain.BudgetPlan, existing map[string]string, newID func() string) []budgetMergeRow {
	var rows []budgetMergeRow
	index := make(map[string]int)
	for _, a := range plan.Allocations {
		if a.Amount <= 0 {
			continue
		}
		if i, ok := index[a.CategoryID]; ok {
			rows[i].Amount = numeric(a.Amount)
			continue
		}
		id, ok := existing[a.CategoryID]
		if !ok {
			id = newID()
		}
		index[a.CategoryID] = len(rows)
		rows = append(rows, budgetMergeRow{BudgetID: id, CategoryID: a.CategoryID, Amount: numeric(a.Amount)})
	}
	return rows
}

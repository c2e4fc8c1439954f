package bigquery

import (
	"fmt"
	"math"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullString(s string) bigquery.NullString { return bigquery.NullString{StringVal: s, Valid: true} }

func TestExpandTables(t *testing.T) {
	l := &Ledger{project: "proj", dataset: "fin"}

	sql := expandTables("SELECT * FROM {transactions} t JOIN {categories} c USING (category_id)", l.table)
	assert.Equal(t, "SELECT * FROM `proj.fin.transactions` t JOIN `proj.fin.categories` c USING (category_id)", sql)
}

func TestTransactionFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		where, params, err := transactionFilter(domain.TransactionFilter{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, where)
		assert.Empty(t, params)
	})

	t.Run("every condition", func(t *testing.T) {
		where, params, err := transactionFilter(domain.TransactionFilter{
			Month:      "2024-06",
			DateFrom:   "2024-06-01",
			DateTo:     "2024-06-30",
			CategoryID: "cat_food",
			AccountID:  "acc_1",
			Type:       domain.TransactionTypeExpense,
			Search:     "Coffee",
		})
		require.NoError(t, err)
		assert.Contains(t, where, "WHERE FORMAT_DATE('%Y-%m', t.transaction_date) = @month")
		assert.Contains(t, where, "AND STRPOS(LOWER(t.description), @search) > 0")

		byName := make(map[string]any)
		for _, p := range params {
			byName[p.Name] = p.Value
		}
		assert.Equal(t, "2024-06", byName["month"])
		assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 1}, byName["date_from"])
		assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 30}, byName["date_to"])
		assert.Equal(t, "expense", byName["type"])
		assert.Equal(t, "coffee", byName["search"])
		assert.Len(t, params, 7)
	})

	t.Run("bad date", func(t *testing.T) {
		_, _, err := transactionFilter(domain.TransactionFilter{DateTo: "30/06/2024"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "date_to")
	})
}

func TestPlanRows(t *testing.T) {
	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("new_%d", n)
	}
	plan := domain.BudgetPlan{
		Month: "2024-07",
		Allocations: []domain.BudgetAllocationInput{
			{CategoryID: "food", Amount: 1000},
			{CategoryID: "rent", Amount: 5000},
			{CategoryID: "fun", Amount: 0},
			{CategoryID: "food", Amount: 1200},
		},
	}

	rows := planRows(plan, map[string]string{"rent": "bud_rent"}, newID)
	require.Len(t, rows, 2)

	assert.Equal(t, "new_1", rows[0].BudgetID)
	assert.Equal(t, "food", rows[0].CategoryID)
	assert.Equal(t, 1200.0, ratFloat(rows[0].Amount))

	assert.Equal(t, "bud_rent", rows[1].BudgetID)
	assert.Equal(t, 5000.0, ratFloat(rows[1].Amount))
	assert.Equal(t, 1, n)
}

func TestCashflowFromRows(t *testing.T) {
	rows := []cashflowRow{
		{Type: "income", CategoryID: nullString("salary"), CategoryName: nullString("Salary"), Amount: big.NewRat(10000, 1)},
		{Type: "expense", CategoryID: nullString("food"), CategoryName: nullString("Food"), Amount: big.NewRat(2500, 1)},
		{Type: "expense", CategoryID: nullString("rent"), CategoryName: nullString("Rent"), Amount: big.NewRat(4000, 1)},
		{Type: "expense", Amount: big.NewRat(500, 1)},
	}

	cf := cashflowFromRows("2024-06-01", "2024-06-30", rows)
	assert.Equal(t, 10000.0, cf.Income)
	assert.Equal(t, 7000.0, cf.Expense)
	assert.Equal(t, 3000.0, cf.Net)
	require.Len(t, cf.ByCategory, 3)
	assert.Equal(t, "salary", cf.ByCategory[0].CategoryID)
	assert.Equal(t, "rent", cf.ByCategory[1].CategoryID)
	assert.Equal(t, domain.TransactionTypeExpense, cf.ByCategory[2].Type)

	empty := cashflowFromRows("2024-06-01", "2024-06-30", nil)
	assert.NotNil(t, empty.ByCategory)
	assert.Zero(t, empty.Net)
}

func TestRowConversions(t *testing.T) {
	acc := AccountRow{AccountID: "acc_1", AccountName: "Cash", Balance: big.NewRat(1505, 10)}
	a := acc.toDomain("IDR")
	assert.Equal(t, "IDR", a.Currency)
	assert.Equal(t, 150.5, a.Balance)

	acc.Currency = nullString("USD")
	assert.Equal(t, "USD", acc.toDomain("IDR").Currency)

	cat := CategoryRow{CategoryID: "sys", Name: "Transfer Out", Type: "expense", IsSystem: bigquery.NullBool{Bool: true, Valid: true}}
	c := cat.toDomain()
	assert.True(t, c.IsSystem)
	assert.Equal(t, domain.TransactionTypeExpense, c.Type)

	created := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	tx := TransactionRow{
		TransactionID:   "tx_1",
		AccountID:       nullString("acc_1"),
		AccountName:     nullString("Cash"),
		TransactionDate: civil.Date{Year: 2024, Month: time.June, Day: 3},
		Type:            "expense",
		Amount:          big.NewRat(35000, 1),
		Description:     "coffee",
		Tags:            []string{"daily"},
		CreatedTS:       created,
	}
	d := tx.toDomain()
	assert.Equal(t, "2024-06-03", d.Date)
	assert.Equal(t, 35000.0, d.Amount)
	assert.Empty(t, d.CategoryID)
	assert.False(t, d.IsTransfer)
	assert.Equal(t, created, d.CreatedAt)

	b := BudgetRow{BudgetID: "b1", CategoryID: "food", Month: "2024-06", Amount: big.NewRat(1000, 1)}
	assert.Equal(t, 1000.0, b.toDomain().Limit)
	assert.Zero(t, b.toDomain().Spent)
}

func TestNumeric(t *testing.T) {
	assert.Equal(t, 0.25, ratFloat(numeric(0.25)))
	assert.Zero(t, ratFloat(numeric(math.NaN())))
	assert.Zero(t, ratFloat(nil))
}

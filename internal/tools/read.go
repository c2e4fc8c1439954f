package tools

import (
	"context"
	"math"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

const (
	defaultTransactionLimit = 20
	maxTransactionLimit     = 100

	warningPercent    = 80.0
	overBudgetPercent = 100.0
)

func (r *Registry) getTransactions(ctx context.Context, args map[string]any) (*Outcome, error) {
	limit := defaultTransactionLimit
	if n, ok := numberArg(args, "limit"); ok {
		limit = int(n)
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	txs, err := r.reader.ListTransactions(ctx, domain.TransactionFilter{
		DateFrom:   stringArg(args, "date_from"),
		DateTo:     stringArg(args, "date_to"),
		Month:      stringArg(args, "month"),
		CategoryID: stringArg(args, "category_id"),
		AccountID:  stringArg(args, "account_id"),
		Type:       domain.TransactionType(stringArg(args, "type")),
		Search:     stringArg(args, "search"),
		Limit:      limit,
	})
	if err != nil {
		return nil, domain.Upstream("get_transactions", err)
	}

	list := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		list = append(list, map[string]any{
			"id":            tx.ID,
			"date":          tx.Date,
			"type":          string(tx.Type),
			"amount":        tx.Amount,
			"description":   tx.Description,
			"category_id":   tx.CategoryID,
			"category_name": tx.CategoryName,
			"account_id":    tx.AccountID,
			"account_name":  tx.AccountName,
			"is_transfer":   tx.IsTransfer,
		})
	}
	return &Outcome{Data: map[string]any{
		"transactions": list,
		"total_count":  len(list),
	}}, nil
}

// budgetStatus grades how much of a limit has been used.
func budgetStatus(percent float64) string {
	switch {
	case percent >= overBudgetPercent:
		return "over_budget"
	case percent >= warningPercent:
		return "warning"
	default:
		return "on_track"
	}
}

func (r *Registry) getBudgetOverview(ctx context.Context, args map[string]any) (*Outcome, error) {
	month := stringArg(args, "month")
	if month == "" {
		month = r.currentMonth()
	}

	budgets, err := r.reader.ListBudgets(ctx, month)
	if err != nil {
		return nil, domain.Upstream("get_budget_overview", err)
	}

	var totalBudget, totalSpent float64
	list := make([]map[string]any, 0, len(budgets))
	for _, b := range budgets {
		percent := 0.0
		if b.Limit > 0 {
			percent = b.Spent / b.Limit * 100
		}
		name := b.CategoryName
		if name == "" {
			name = "Unknown"
		}
		list = append(list, map[string]any{
			"category_id":     b.CategoryID,
			"category_name":   name,
			"limit":           b.Limit,
			"spent":           b.Spent,
			"remaining":       b.Limit - b.Spent,
			"percentage_used": math.Round(percent*10) / 10,
			"status":          budgetStatus(percent),
		})
		totalBudget += b.Limit
		totalSpent += b.Spent
	}

	return &Outcome{Data: map[string]any{
		"month":           month,
		"budgets":         list,
		"total_budget":    totalBudget,
		"total_spent":     totalSpent,
		"total_remaining": totalBudget - totalSpent,
	}}, nil
}

func (r *Registry) getCashflowSummary(ctx context.Context, args map[string]any) (*Outcome, error) {
	period := stringArg(args, "period")
	if period == "" {
		period = "month"
	}

	now := r.now()
	var from, to string
	switch period {
	case "week":
		from = now.AddDate(0, 0, -7).Format(time.DateOnly)
		to = now.Format(time.DateOnly)
	case "month":
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(time.DateOnly)
		to = now.Format(time.DateOnly)
	default:
		from, to = stringArg(args, "date_from"), stringArg(args, "date_to")
		if from == "" || to == "" {
			return nil, domain.Invalid("date_from", "custom period requires date_from and date_to")
		}
		if from > to {
			return nil, domain.Invalid("date_to", "must not be before date_from")
		}
	}

	cf, err := r.reader.Cashflow(ctx, from, to)
	if err != nil {
		return nil, domain.Upstream("get_cashflow_summary", err)
	}

	byCategory := make([]map[string]any, 0, len(cf.ByCategory))
	for _, c := range cf.ByCategory {
		byCategory = append(byCategory, map[string]any{
			"category_id":   c.CategoryID,
			"category_name": c.CategoryName,
			"type":          string(c.Type),
			"amount":        c.Amount,
		})
	}
	return &Outcome{Data: map[string]any{
		"period":      period,
		"date_from":   from,
		"date_to":     to,
		"income":      cf.Income,
		"expense":     cf.Expense,
		"net":         cf.Income - cf.Expense,
		"by_category": byCategory,
	}}, nil
}

func (r *Registry) getAccounts(ctx context.Context) (*Outcome, error) {
	accounts, err := r.reader.ListAccounts(ctx)
	if err != nil {
		return nil, domain.Upstream("get_accounts", err)
	}

	total := 0.0
	list := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		total += a.Balance
		list = append(list, map[string]any{
			"id":       a.ID,
			"name":     a.Name,
			"type":     a.Type,
			"currency": a.Currency,
			"balance":  a.Balance,
		})
	}
	return &Outcome{Data: map[string]any{
		"accounts":      list,
		"total_balance": total,
	}}, nil
}

func (r *Registry) getCategories(ctx context.Context, args map[string]any) (*Outcome, error) {
	categories, err := r.reader.ListCategories(ctx, domain.TransactionType(stringArg(args, "type")))
	if err != nil {
		return nil, domain.Upstream("get_categories", err)
	}
	includeSystem := boolArg(args, "include_system")

	income := []map[string]any{}
	expense := []map[string]any{}
	for _, c := range categories {
		if c.IsSystem && !includeSystem {
			continue
		}
		row := map[string]any{
			"id":        c.ID,
			"name":      c.Name,
			"type":      string(c.Type),
			"color":     c.Color,
			"icon":      c.Icon,
			"is_system": c.IsSystem,
		}
		if c.ParentID != "" {
			row["parent_id"] = c.ParentID
		}
		if c.Type == domain.TransactionTypeIncome {
			income = append(income, row)
		} else {
			expense = append(expense, row)
		}
	}
	return &Outcome{Data: map[string]any{
		"income_categories":  income,
		"expense_categories": expense,
		"total_count":        len(income) + len(expense),
	}}, nil
}

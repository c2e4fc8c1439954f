package ledger

import (
	"context"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

// Reader provides the read-only queries behind the get_* assistant tools and
// the context of the system prompt.
type Reader interface {
	// ListAccounts returns every account of the user.
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// ListCategories returns categories of the given type, or all of them
	// when t is empty. System categories are included.
	ListCategories(ctx context.Context, t domain.TransactionType) ([]domain.Category, error)

	// ListTransactions returns transactions matching the filter, newest first.
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// ListBudgets returns budgets of a month (YYYY-MM) with the amount spent.
	ListBudgets(ctx context.Context, month string) ([]domain.Budget, error)

	// Cashflow sums income and expense between two dates, both inclusive.
	Cashflow(ctx context.Context, dateFrom, dateTo string) (*domain.Cashflow, error)
}

// Writer is the domain mutation API proposals are applied against.
// Every method returns the id of the created or affected entity.
type Writer interface {
	// CreateTransaction inserts one transaction.
	CreateTransaction(ctx context.Context, tx domain.NewTransaction) (string, error)

	// CreateTransfer records a transfer between two accounts.
	CreateTransfer(ctx context.Context, tr domain.NewTransfer) (string, error)

	// ApplyBudgetPlan upserts one budget per (category, month). Allocations
	// with a non-positive amount are skipped. Returns the budget ids.
	ApplyBudgetPlan(ctx context.Context, plan domain.BudgetPlan) ([]string, error)

	// CreateCategory inserts a user category.
	CreateCategory(ctx context.Context, c domain.NewCategory) (string, error)

	// RenameCategory changes the name of a category.
	RenameCategory(ctx context.Context, categoryID, newName string) error

	// DeleteCategory removes a category.
	DeleteCategory(ctx context.Context, categoryID string) error

	// MergeCategories moves every transaction of source to target and
	// deletes source.
	MergeCategories(ctx context.Context, sourceID, targetID string) error
}

// Ledger is the full external domain API.
type Ledger interface {
	Reader
	Writer
}

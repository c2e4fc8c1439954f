package domain

import "time"

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Transaction is one ledger entry as read back from the ledger.
// Amount is always non-negative; Type carries the direction.
type Transaction struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"` // YYYY-MM-DD
	Type         TransactionType `json:"type"`
	Amount       float64         `json:"amount"`
	Description  string          `json:"description"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	AccountID    string          `json:"account_id,omitempty"`
	AccountName  string          `json:"account_name,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	IsTransfer   bool            `json:"is_transfer"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewTransaction is the input for creating a ledger transaction.
type NewTransaction struct {
	Date        string
	Type        TransactionType
	Amount      float64
	Description string
	CategoryID  string
	AccountID   string
	Tags        []string
}

// NewTransfer moves money between two accounts of the same user.
type NewTransfer struct {
	Date          string
	Amount        float64
	Description   string
	FromAccountID string
	ToAccountID   string
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	DateFrom   string
	DateTo     string
	Month      string // YYYY-MM, alternative to the date range
	CategoryID string
	AccountID  string
	Type       TransactionType
	Search     string
	Limit      int
}

// Account is a user's money container (bank, cash, e-wallet...).
type Account struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
}

// Category groups transactions. System categories (transfers) are managed
// by the ledger and cannot be renamed, deleted or merged away.
type Category struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     TransactionType `json:"type"`
	Color    string          `json:"color"`
	Icon     string          `json:"icon"`
	ParentID string          `json:"parent_id,omitempty"`
	IsSystem bool            `json:"is_system"`
}

// NewCategory is the input for creating a category.
type NewCategory struct {
	Name  string
	Type  TransactionType
	Color string
	Icon  string
}

// Budget is a monthly spending limit for one category.
type Budget struct {
	ID           string  `json:"id"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name,omitempty"`
	Month        string  `json:"month"` // YYYY-MM
	Limit        float64 `json:"limit"`
	Spent        float64 `json:"spent"`
}

// BudgetAllocationInput is one line of an apply-budget-plan call.
type BudgetAllocationInput struct {
	CategoryID string  `json:"category_id"`
	Amount     float64 `json:"amount"`
}

// BudgetPlan is the input of ApplyBudgetPlan.
type BudgetPlan struct {
	Month       string                  `json:"month"`
	Allocations []BudgetAllocationInput `json:"allocations"`
}

// CategoryTotal is one row of a cashflow breakdown.
type CategoryTotal struct {
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Type         TransactionType `json:"type"`
	Amount       float64         `json:"amount"`
}

// Cashflow summarizes income and expense in a closed date range.
type Cashflow struct {
	DateFrom   string          `json:"date_from"`
	DateTo     string          `json:"date_to"`
	Income     float64         `json:"income"`
	Expense    float64         `json:"expense"`
	Net        float64         `json:"net"`
	ByCategory []CategoryTotal `json:"by_category"`
}

package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	AccountID   bigquery.NullString `bigquery:"account_id"`   // NULLABLE
	AccountName bigquery.NullString `bigquery:"account_name"` // joined from accounts

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED in schema

	Type     string   `bigquery:"type"`     // REQUIRED (income | expense)
	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC, never negative
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	Description string `bigquery:"description"` // REQUIRED STRING

	CategoryID   bigquery.NullString `bigquery:"category_id"`   // NULLABLE
	CategoryName bigquery.NullString `bigquery:"category_name"` // joined from categories

	IsTransfer bigquery.NullBool `bigquery:"is_transfer"`

	Tags []string `bigquery:"tags"` // REPEATED STRING

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP)
}

func (r *TransactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:           r.TransactionID,
		Date:         r.TransactionDate.String(),
		Type:         domain.TransactionType(r.Type),
		Amount:       ratFloat(r.Amount),
		Description:  r.Description,
		CategoryID:   r.CategoryID.StringVal,
		CategoryName: r.CategoryName.StringVal,
		AccountID:    r.AccountID.StringVal,
		AccountName:  r.AccountName.StringVal,
		Tags:         r.Tags,
		IsTransfer:   r.IsTransfer.Valid && r.IsTransfer.Bool,
		CreatedAt:    r.CreatedTS,
	}
}

// insertRow is the parameter set of one inserted transaction.
type insertRow struct {
	TransactionID   string     `bigquery:"transaction_id"`
	AccountID       string     `bigquery:"account_id"`
	TransactionDate civil.Date `bigquery:"transaction_date"`
	Type            string     `bigquery:"type"`
	Amount          *big.Rat   `bigquery:"amount"`
	Description     string     `bigquery:"description"`
	CategoryID      string     `bigquery:"category_id"`
	Tags            []string   `bigquery:"tags"`
	IsTransfer      bool       `bigquery:"is_transfer"`
}

// cashflowRow is one (type, category) bucket of a cashflow query.
type cashflowRow struct {
	Type         string              `bigquery:"type"`
	CategoryID   bigquery.NullString `bigquery:"category_id"`
	CategoryName bigquery.NullString `bigquery:"category_name"`
	Amount       *big.Rat            `bigquery:"amount"`
}

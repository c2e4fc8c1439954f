package bigquery

import (
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

type AccountRow struct {
	AccountID string `bigquery:"account_id"` // REQUIRED

	AccountName string              `bigquery:"account_name"` // REQUIRED
	AccountType bigquery.NullString `bigquery:"account_type"` // NULLABLE (cash, bank, ewallet...)
	Currency    bigquery.NullString `bigquery:"currency"`     // NULLABLE, ledger default when empty
	Balance     *big.Rat            `bigquery:"balance"`      // NULLABLE NUMERIC

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // NULLABLE (default CURRENT_TIMESTAMP())
}

func (r *AccountRow) toDomain(defaultCurrency string) domain.Account {
	a := domain.Account{
		ID:       r.AccountID,
		Name:     r.AccountName,
		Type:     r.AccountType.StringVal,
		Currency: r.Currency.StringVal,
		Balance:  ratFloat(r.Balance),
	}
	if a.Currency == "" {
		a.Currency = defaultCurrency
	}
	return a
}

// ratFloat converts a NUMERIC value; NULL reads as zero.
func ratFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}

// numeric converts an amount for a NUMERIC column or parameter.
func numeric(f float64) *big.Rat {
	r := new(big.Rat)
	if r.SetFloat64(f) == nil {
		return new(big.Rat)
	}
	return r
}

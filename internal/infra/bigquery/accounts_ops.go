package bigquery

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

// ListAccounts implements the ledger.Reader interface.
func (l *Ledger) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	q := l.query(`
		SELECT
			account_id,
			account_name,
			account_type,
			currency,
			balance,
			created_ts
		FROM {accounts}
		ORDER BY created_ts, account_name
	`)

	rows, err := readAll[AccountRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}

	accounts := make([]domain.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toDomain(l.currency))
	}
	return accounts, nil
}

package bigquery

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

const selectTransactions = `
		SELECT
			t.transaction_id,
			t.account_id,
			a.account_name,
			t.transaction_date,
			t.type,
			t.amount,
			t.currency,
			t.description,
			t.category_id,
			c.name AS category_name,
			t.is_transfer,
			t.tags,
			t.created_ts
		FROM {transactions} t
		LEFT JOIN {categories} c ON c.category_id = t.category_id
		LEFT JOIN {accounts} a ON a.account_id = t.account_id
`

// ListTransactions implements the ledger.Reader interface.
func (l *Ledger) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	where, params, err := transactionFilter(f)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	sql := selectTransactions + where + "\n\t\tORDER BY t.transaction_date DESC, t.created_ts DESC"
	if f.Limit > 0 {
		sql += "\n\t\tLIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: int64(f.Limit)})
	}

	rows, err := readAll[TransactionRow](ctx, l.query(sql, params...))
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, rows[i].toDomain())
	}
	return txs, nil
}

// transactionFilter translates a filter into a WHERE clause over the
// transactions alias t.
func transactionFilter(f domain.TransactionFilter) (string, []bigquery.QueryParameter, error) {
	var (
		conds  []string
		params []bigquery.QueryParameter
	)
	add := func(cond, name string, value any) {
		conds = append(conds, cond)
		params = append(params, bigquery.QueryParameter{Name: name, Value: value})
	}

	if f.Month != "" {
		add("FORMAT_DATE('%Y-%m', t.transaction_date) = @month", "month", f.Month)
	}
	if f.DateFrom != "" {
		d, err := civil.ParseDate(f.DateFrom)
		if err != nil {
			return "", nil, fmt.Errorf("invalid date_from %q: %w", f.DateFrom, err)
		}
		add("t.transaction_date >= @date_from", "date_from", d)
	}
	if f.DateTo != "" {
		d, err := civil.ParseDate(f.DateTo)
		if err != nil {
			return "", nil, fmt.Errorf("invalid date_to %q: %w", f.DateTo, err)
		}
		add("t.transaction_date <= @date_to", "date_to", d)
	}
	if f.CategoryID != "" {
		add("t.category_id = @category_id", "category_id", f.CategoryID)
	}
	if f.AccountID != "" {
		add("t.account_id = @account_id", "account_id", f.AccountID)
	}
	if f.Type != "" {
		add("t.type = @type", "type", string(f.Type))
	}
	if f.Search != "" {
		add("STRPOS(LOWER(t.description), @search) > 0", "search", strings.ToLower(f.Search))
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "\t\tWHERE " + strings.Join(conds, "\n\t\t  AND "), params, nil
}

// CreateTransaction implements the ledger.Writer interface.
func (l *Ledger) CreateTransaction(ctx context.Context, in domain.NewTransaction) (string, error) {
	date, err := civil.ParseDate(in.Date)
	if err != nil {
		return "", fmt.Errorf("CreateTransaction: invalid date %q: %w", in.Date, err)
	}
	if err := l.checkReferences(ctx, in.CategoryID, in.AccountID); err != nil {
		return "", fmt.Errorf("CreateTransaction: %w", err)
	}

	row := insertRow{
		TransactionID:   l.newID(),
		AccountID:       in.AccountID,
		TransactionDate: date,
		Type:            string(in.Type),
		Amount:          numeric(in.Amount),
		Description:     in.Description,
		CategoryID:      in.CategoryID,
		Tags:            append([]string{}, in.Tags...),
	}
	if err := l.insertTransactions(ctx, []insertRow{row}); err != nil {
		return "", fmt.Errorf("CreateTransaction: %w", err)
	}

	l.log.Info().Str("transaction_id", row.TransactionID).Str("type", row.Type).Msg("Transaction created")
	return row.TransactionID, nil
}

// CreateTransfer implements the ledger.Writer interface. Both legs are
// inserted by one statement; the id of the outgoing leg is returned.
func (l *Ledger) CreateTransfer(ctx context.Context, in domain.NewTransfer) (string, error) {
	date, err := civil.ParseDate(in.Date)
	if err != nil {
		return "", fmt.Errorf("CreateTransfer: invalid date %q: %w", in.Date, err)
	}
	if err := l.checkReferences(ctx, "", in.FromAccountID, in.ToAccountID); err != nil {
		return "", fmt.Errorf("CreateTransfer: %w", err)
	}

	out := insertRow{
		TransactionID: l.newID(), AccountID: in.FromAccountID, TransactionDate: date,
		Type: string(domain.TransactionTypeExpense), Amount: numeric(in.Amount),
		Description: in.Description, Tags: []string{}, IsTransfer: true,
	}
	inLeg := out
	inLeg.TransactionID = l.newID()
	inLeg.AccountID = in.ToAccountID
	inLeg.Type = string(domain.TransactionTypeIncome)

	if err := l.insertTransactions(ctx, []insertRow{out, inLeg}); err != nil {
		return "", fmt.Errorf("CreateTransfer: %w", err)
	}
	return out.TransactionID, nil
}

// insertTransactions uses DML rather than the streaming inserter so rows can
// be re-pointed by a category merge right away.
func (l *Ledger) insertTransactions(ctx context.Context, rows []insertRow) error {
	q := l.query(`
		INSERT INTO {transactions} (
			transaction_id, account_id, transaction_date, type, amount, currency,
			description, category_id, tags, is_transfer, created_ts
		)
		SELECT
			r.transaction_id, NULLIF(r.account_id, ''), r.transaction_date, r.type, r.amount, @currency,
			r.description, NULLIF(r.category_id, ''), r.tags, r.is_transfer, CURRENT_TIMESTAMP()
		FROM UNNEST(@rows) AS r
	`,
		bigquery.QueryParameter{Name: "rows", Value: rows},
		bigquery.QueryParameter{Name: "currency", Value: l.currency},
	)
	_, err := l.exec(ctx, q)
	return err
}

// checkReferences fails when a non-empty category or account id does not
// resolve to a live row.
func (l *Ledger) checkReferences(ctx context.Context, categoryID string, accountIDs ...string) error {
	var accounts []string
	for _, id := range accountIDs {
		if id != "" && !slices.Contains(accounts, id) {
			accounts = append(accounts, id)
		}
	}
	if categoryID == "" && len(accounts) == 0 {
		return nil
	}

	q := l.query(`
		SELECT
		  (SELECT COUNT(*) FROM {categories}
		    WHERE category_id = @category_id AND IFNULL(is_active, TRUE)) AS categories,
		  (SELECT COUNT(DISTINCT account_id) FROM {accounts}
		    WHERE account_id IN UNNEST(@account_ids)) AS accounts
	`,
		bigquery.QueryParameter{Name: "category_id", Value: categoryID},
		bigquery.QueryParameter{Name: "account_ids", Value: append([]string{}, accounts...)},
	)
	rows, err := readAll[referenceRow](ctx, q)
	if err != nil {
		return fmt.Errorf("checking references: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("checking references: empty result")
	}
	if categoryID != "" && rows[0].Categories == 0 {
		return fmt.Errorf("category %s does not exist", categoryID)
	}
	if rows[0].Accounts != int64(len(accounts)) {
		return fmt.Errorf("account %s does not exist", strings.Join(accounts, " or "))
	}
	return nil
}

type referenceRow struct {
	Categories int64 `bigquery:"categories"`
	Accounts   int64 `bigquery:"accounts"`
}

// Cashflow implements the ledger.Reader interface. Transfers are excluded.
func (l *Ledger) Cashflow(ctx context.Context, dateFrom, dateTo string) (*domain.Cashflow, error) {
	from, err := civil.ParseDate(dateFrom)
	if err != nil {
		return nil, fmt.Errorf("Cashflow: invalid date_from %q: %w", dateFrom, err)
	}
	to, err := civil.ParseDate(dateTo)
	if err != nil {
		return nil, fmt.Errorf("Cashflow: invalid date_to %q: %w", dateTo, err)
	}

	q := l.query(`
		SELECT
			t.type,
			t.category_id,
			ANY_VALUE(c.name) AS category_name,
			SUM(t.amount) AS amount
		FROM {transactions} t
		LEFT JOIN {categories} c ON c.category_id = t.category_id
		WHERE t.transaction_date BETWEEN @date_from AND @date_to
		  AND NOT IFNULL(t.is_transfer, FALSE)
		GROUP BY t.type, t.category_id
	`,
		bigquery.QueryParameter{Name: "date_from", Value: from},
		bigquery.QueryParameter{Name: "date_to", Value: to},
	)
	rows, err := readAll[cashflowRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("Cashflow: %w", err)
	}
	return cashflowFromRows(dateFrom, dateTo, rows), nil
}

func cashflowFromRows(dateFrom, dateTo string, rows []cashflowRow) *domain.Cashflow {
	cf := &domain.Cashflow{DateFrom: dateFrom, DateTo: dateTo, ByCategory: []domain.CategoryTotal{}}
	for _, r := range rows {
		amount := ratFloat(r.Amount)
		t := domain.TransactionType(r.Type)
		if t == domain.TransactionTypeIncome {
			cf.Income += amount
		} else {
			cf.Expense += amount
		}
		if !r.CategoryID.Valid || r.CategoryID.StringVal == "" {
			continue
		}
		cf.ByCategory = append(cf.ByCategory, domain.CategoryTotal{
			CategoryID:   r.CategoryID.StringVal,
			CategoryName: r.CategoryName.StringVal,
			Type:         t,
			Amount:       amount,
		})
	}
	cf.Net = cf.Income - cf.Expense
	sort.SliceStable(cf.ByCategory, func(i, j int) bool {
		return cf.ByCategory[i].Amount > cf.ByCategory[j].Amount
	})
	return cf
}

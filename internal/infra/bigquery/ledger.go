package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-assistant/internal/ledger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

const (
	accountsTable     = "accounts"
	categoriesTable   = "categories"
	transactionsTable = "transactions"
	budgetsTable      = "budgets"
)

// Config locates the ledger dataset.
type Config struct {
	ProjectID string
	DatasetID string
	Currency  string
}

// Ledger is the BigQuery implementation of ledger.Ledger. It holds a shared
// BigQuery client to avoid creating a new connection for each operation.
type Ledger struct {
	client   *bigquery.Client
	project  string
	dataset  string
	currency string
	newID    func() string
	log      zerolog.Logger
}

// NewLedger creates a client for cfg.ProjectID and wraps it in a Ledger.
func NewLedger(ctx context.Context, cfg Config, log zerolog.Logger) (*Ledger, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedger: creating client: %w", err)
	}
	return NewLedgerWithClient(client, cfg, log), nil
}

// NewLedgerWithClient wraps an existing client.
func NewLedgerWithClient(client *bigquery.Client, cfg Config, log zerolog.Logger) *Ledger {
	dataset := cfg.DatasetID
	if dataset == "" {
		dataset = "finance"
	}
	return &Ledger{
		client:   client,
		project:  cfg.ProjectID,
		dataset:  dataset,
		currency: cfg.Currency,
		newID:    uuid.NewString,
		log:      log,
	}
}

// Close closes the BigQuery client connection. This should be called when
// the ledger is no longer needed to release resources.
func (l *Ledger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted name of a dataset table.
func (l *Ledger) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", l.project, l.dataset, name)
}

func expandTables(sql string, table func(string) string) string {
	return strings.NewReplacer(
		"{accounts}", table(accountsTable),
		"{categories}", table(categoriesTable),
		"{transactions}", table(transactionsTable),
		"{budgets}", table(budgetsTable),
	).Replace(sql)
}

// query builds a parameterized query. Table names in sql are written as
// {accounts}, {categories}, {transactions} and {budgets}.
func (l *Ledger) query(sql string, params ...bigquery.QueryParameter) *bigquery.Query {
	q := l.client.Query(expandTables(sql, l.table))
	q.Parameters = params
	return q
}

// exec runs a DML statement or script, waits for it and returns the number of
// affected rows when BigQuery reports it.
func (l *Ledger) exec(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// readAll runs q and decodes every row into T.
func readAll[T any](ctx context.Context, q *bigquery.Query) ([]T, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []T
	for {
		var r T
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

var _ ledger.Ledger = (*Ledger)(nil)

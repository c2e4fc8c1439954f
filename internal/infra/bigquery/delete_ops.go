package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteCategory implements the ledger.Writer interface. Categories are
// retired rather than removed so historical transactions keep their names.
func (l *Ledger) DeleteCategory(ctx context.Context, categoryID string) error {
	affected, err := l.exec(ctx, l.retireCategory(categoryID))
	if err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteCategory: category %s does not exist or is a system category", categoryID)
	}

	l.log.Info().Str("category_id", categoryID).Msg("Category retired")
	return nil
}

// MergeCategories implements the ledger.Writer interface. Moving the
// transactions and retiring the source run in one multi-statement
// transaction.
func (l *Ledger) MergeCategories(ctx context.Context, sourceID, targetID string) error {
	// 1. Both categories must be live; the source must not be a system category
	check := l.query(`
		SELECT
		  COUNTIF(category_id = @source AND NOT IFNULL(is_system, FALSE)) AS source_ok,
		  COUNTIF(category_id = @target) AS target_ok
		FROM {categories}
		WHERE IFNULL(is_active, TRUE)
		  AND category_id IN (@source, @target)
	`,
		bigquery.QueryParameter{Name: "source", Value: sourceID},
		bigquery.QueryParameter{Name: "target", Value: targetID},
	)
	rows, err := readAll[mergeCheckRow](ctx, check)
	if err != nil {
		return fmt.Errorf("MergeCategories: checking categories: %w", err)
	}
	if len(rows) == 0 || rows[0].SourceOK == 0 {
		return fmt.Errorf("MergeCategories: source category %s does not exist or is a system category", sourceID)
	}
	if rows[0].TargetOK == 0 {
		return fmt.Errorf("MergeCategories: target category %s does not exist", targetID)
	}

	// 2. Re-point transactions, then retire the source
	q := l.query(`
		BEGIN TRANSACTION;

		UPDATE {transactions}
		SET category_id = @target
		WHERE category_id = @source;

		UPDATE {categories}
		SET is_active = FALSE, retired_ts = CURRENT_TIMESTAMP()
		WHERE category_id = @source;

		COMMIT TRANSACTION;
	`,
		bigquery.QueryParameter{Name: "source", Value: sourceID},
		bigquery.QueryParameter{Name: "target", Value: targetID},
	)
	if _, err := l.exec(ctx, q); err != nil {
		return fmt.Errorf("MergeCategories: %w", err)
	}

	l.log.Info().Str("source_id", sourceID).Str("target_id", targetID).Msg("Categories merged")
	return nil
}

func (l *Ledger) retireCategory(categoryID string) *bigquery.Query {
	return l.query(`
		UPDATE {categories}
		SET is_active = FALSE, retired_ts = CURRENT_TIMESTAMP()
		WHERE category_id = @category_id
		  AND IFNULL(is_active, TRUE)
		  AND NOT IFNULL(is_system, FALSE)
	`, bigquery.QueryParameter{Name: "category_id", Value: categoryID})
}

type mergeCheckRow struct {
	SourceOK int64 `bigquery:"source_ok"`
	TargetOK int64 `bigquery:"target_ok"`
}

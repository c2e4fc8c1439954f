package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

// ListCategories implements the ledger.Reader interface. Retired categories
// are never returned.
func (l *Ledger) ListCategories(ctx context.Context, t domain.TransactionType) ([]domain.Category, error) {
	q := l.query(`
		SELECT
		  category_id,
		  parent_category_id,
		  name,
		  type,
		  color,
		  icon,
		  is_system,
		  is_active,
		  created_ts,
		  retired_ts
		FROM {categories}
		WHERE IFNULL(is_active, TRUE)
		  AND (@type = '' OR type = @type)
		ORDER BY type, name
	`, bigquery.QueryParameter{Name: "type", Value: string(t)})

	rows, err := readAll[CategoryRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}

	categories := make([]domain.Category, 0, len(rows))
	for i := range rows {
		categories = append(categories, rows[i].toDomain())
	}
	return categories, nil
}

// CreateCategory implements the ledger.Writer interface. Names are unique per
// type, ignoring case.
func (l *Ledger) CreateCategory(ctx context.Context, in domain.NewCategory) (string, error) {
	dup := l.query(`
		SELECT COUNT(*) AS n
		FROM {categories}
		WHERE IFNULL(is_active, TRUE)
		  AND type = @type
		  AND LOWER(name) = LOWER(@name)
	`,
		bigquery.QueryParameter{Name: "type", Value: string(in.Type)},
		bigquery.QueryParameter{Name: "name", Value: in.Name},
	)
	counts, err := readAll[countRow](ctx, dup)
	if err != nil {
		return "", fmt.Errorf("CreateCategory: checking duplicates: %w", err)
	}
	if len(counts) > 0 && counts[0].N > 0 {
		return "", fmt.Errorf("CreateCategory: category %q already exists", in.Name)
	}

	id := l.newID()
	q := l.query(`
		INSERT INTO {categories} (
			category_id, parent_category_id, name, type, color, icon,
			is_system, is_active, created_ts
		)
		VALUES (
			@category_id, NULL, @name, @type, @color, @icon,
			FALSE, TRUE, CURRENT_TIMESTAMP()
		)
	`,
		bigquery.QueryParameter{Name: "category_id", Value: id},
		bigquery.QueryParameter{Name: "name", Value: in.Name},
		bigquery.QueryParameter{Name: "type", Value: string(in.Type)},
		bigquery.QueryParameter{Name: "color", Value: in.Color},
		bigquery.QueryParameter{Name: "icon", Value: in.Icon},
	)
	if _, err := l.exec(ctx, q); err != nil {
		return "", fmt.Errorf("CreateCategory: %w", err)
	}

	l.log.Info().Str("category_id", id).Str("name", in.Name).Msg("Category created")
	return id, nil
}

// RenameCategory implements the ledger.Writer interface.
func (l *Ledger) RenameCategory(ctx context.Context, categoryID, newName string) error {
	q := l.query(`
		UPDATE {categories}
		SET name = @name
		WHERE category_id = @category_id
		  AND IFNULL(is_active, TRUE)
		  AND NOT IFNULL(is_system, FALSE)
	`,
		bigquery.QueryParameter{Name: "category_id", Value: categoryID},
		bigquery.QueryParameter{Name: "name", Value: newName},
	)

	affected, err := l.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("RenameCategory: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("RenameCategory: category %s does not exist or is a system category", categoryID)
	}
	return nil
}

type countRow struct {
	N int64 `bigquery:"n"`
}

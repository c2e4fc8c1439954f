package bigquery

import (
	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-assistant/internal/domain"
)

type CategoryRow struct {
	CategoryID       string              `bigquery:"category_id"`        // REQUIRED
	ParentCategoryID bigquery.NullString `bigquery:"parent_category_id"` // NULLABLE

	Name  string              `bigquery:"name"`  // REQUIRED
	Type  string              `bigquery:"type"`  // REQUIRED (income | expense)
	Color bigquery.NullString `bigquery:"color"` // NULLABLE
	Icon  bigquery.NullString `bigquery:"icon"`  // NULLABLE

	IsSystem bigquery.NullBool `bigquery:"is_system"` // NULLABLE, transfer categories
	IsActive bigquery.NullBool `bigquery:"is_active"` // NULLABLE

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // NULLABLE (defaults to CURRENT_TIMESTAMP())
	RetiredTS bigquery.NullTimestamp `bigquery:"retired_ts"` // NULLABLE
}

func (r *CategoryRow) toDomain() domain.Category {
	return domain.Category{
		ID:       r.CategoryID,
		Name:     r.Name,
		Type:     domain.TransactionType(r.Type),
		Color:    r.Color.StringVal,
		Icon:     r.Icon.StringVal,
		ParentID: r.ParentCategoryID.StringVal,
		IsSystem: r.IsSystem.Valid && r.IsSystem.Bool,
	}
}

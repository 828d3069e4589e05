package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/indentrecon/indentrecon/internal/models"
)

// ItemRepository handles the item master and UOM conversions.
type ItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Upsert inserts or replaces an item together with its conversions.
func (r *ItemRepository) Upsert(ctx context.Context, tx *sql.Tx, item *models.Item) error {
	c := conn(r.db, tx)
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := c.ExecContext(ctx, `
		INSERT INTO items (sku, name, stock_uom, packaging_capacity, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			name = excluded.name,
			stock_uom = excluded.stock_uom,
			packaging_capacity = excluded.packaging_capacity`,
		item.SKU, item.Name, item.StockUOM, nullableInt(item.PackagingCapacity), formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting item %s: %w", item.SKU, err)
	}

	if _, err := c.ExecContext(ctx, "DELETE FROM uom_conversions WHERE sku = ?", item.SKU); err != nil {
		return fmt.Errorf("clearing conversions for %s: %w", item.SKU, err)
	}
	for _, conv := range item.Conversions {
		_, err := c.ExecContext(ctx,
			"INSERT INTO uom_conversions (sku, uom, factor) VALUES (?, ?, ?)",
			item.SKU, conv.UOM, conv.Factor)
		if err != nil {
			return fmt.Errorf("inserting conversion %s/%s: %w", item.SKU, conv.UOM, err)
		}
	}
	return nil
}

// GetBySKU retrieves an item with its conversions.
func (r *ItemRepository) GetBySKU(ctx context.Context, tx *sql.Tx, sku string) (*models.Item, error) {
	c := conn(r.db, tx)
	item, err := scanItem(c.QueryRowContext(ctx, `
		SELECT sku, name, stock_uom, packaging_capacity, created_at
		FROM items WHERE sku = ?`, sku))
	if err != nil {
		return nil, notFound("item", sku, err)
	}

	convs, err := r.conversions(ctx, c, "WHERE sku = ?", sku)
	if err != nil {
		return nil, err
	}
	item.Conversions = convs[sku]
	return item, nil
}

// All returns every item ordered by SKU.
func (r *ItemRepository) All(ctx context.Context, tx *sql.Tx) ([]*models.Item, error) {
	c := conn(r.db, tx)
	rows, err := c.QueryContext(ctx, `
		SELECT sku, name, stock_uom, packaging_capacity, created_at
		FROM items ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	convs, err := r.conversions(ctx, c, "")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		item.Conversions = convs[item.SKU]
	}
	return items, nil
}

// List returns a page of items ordered by SKU, without conversions.
func (r *ItemRepository) List(ctx context.Context, page models.Pagination) (*models.ItemList, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&total); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, name, stock_uom, packaging_capacity, created_at
		FROM items ORDER BY sku LIMIT ? OFFSET ?`, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	list := &models.ItemList{
		Total:      total,
		Page:       page.Page,
		PageSize:   page.Limit(),
		TotalPages: page.TotalPages(total),
	}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		list.Items = append(list.Items, item)
	}
	return list, rows.Err()
}

func (r *ItemRepository) conversions(ctx context.Context, c dbtx, where string, args ...any) (map[string][]models.UOMConversion, error) {
	rows, err := c.QueryContext(ctx, "SELECT sku, uom, factor FROM uom_conversions "+where+" ORDER BY sku, uom", args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.UOMConversion)
	for rows.Next() {
		var (
			sku  string
			conv models.UOMConversion
		)
		if err := rows.Scan(&sku, &conv.UOM, &conv.Factor); err != nil {
			return nil, fmt.Errorf("scanning conversion: %w", err)
		}
		out[sku] = append(out[sku], conv)
	}
	return out, rows.Err()
}

func scanItem(s scanner) (*models.Item, error) {
	var (
		item     models.Item
		capacity sql.NullInt64
		created  string
	)
	if err := s.Scan(&item.SKU, &item.Name, &item.StockUOM, &capacity, &created); err != nil {
		return nil, err
	}
	if capacity.Valid {
		v := int(capacity.Int64)
		item.PackagingCapacity = &v
	}
	item.CreatedAt = parseTime(created)
	return &item, nil
}

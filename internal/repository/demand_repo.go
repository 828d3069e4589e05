package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// DemandRepository handles realized demand and the order lines it is
// aggregated from.
type DemandRepository struct {
	db *sql.DB
}

// NewDemandRepository creates a new demand repository.
func NewDemandRepository(db *sql.DB) *DemandRepository {
	return &DemandRepository{db: db}
}

// ============================================================================
// REALIZED DEMAND
// ============================================================================

// Set stores the realized demand for (route, date, sku), replacing any
// previous value.
func (r *DemandRepository) Set(ctx context.Context, tx *sql.Tx, d *models.RealizedDemand) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO realized_demand (route, demand_date, sku, quantity, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(route, demand_date, sku) DO UPDATE SET
			quantity = excluded.quantity,
			updated_at = excluded.updated_at`,
		d.Route, formatDate(d.Date), d.SKU, d.Quantity, formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storing demand %s/%s/%s: %w", d.Route, formatDate(d.Date), d.SKU, err)
	}
	return nil
}

// Add increases the realized demand for (route, date, sku) by qty.
func (r *DemandRepository) Add(ctx context.Context, tx *sql.Tx, route string, date time.Time, sku string, qty decimal.Decimal) error {
	c := conn(r.db, tx)
	current := decimal.Zero
	err := c.QueryRowContext(ctx, `
		SELECT quantity FROM realized_demand
		WHERE route = ? AND demand_date = ? AND sku = ?`,
		route, formatDate(date), sku).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading demand: %w", err)
	}
	return r.Set(ctx, tx, &models.RealizedDemand{
		Route:    route,
		Date:     date,
		SKU:      sku,
		Quantity: current.Add(qty),
	})
}

// ForGroup returns realized demand per SKU for a (route, date). SKUs without
// a record are absent from the map.
func (r *DemandRepository) ForGroup(ctx context.Context, route string, date time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, quantity FROM realized_demand
		WHERE route = ? AND demand_date = ?`,
		route, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("querying demand for %s@%s: %w", route, formatDate(date), err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			sku string
			qty decimal.Decimal
		)
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, fmt.Errorf("scanning demand: %w", err)
		}
		out[sku] = qty
	}
	return out, rows.Err()
}

// List returns every realized demand row, ordered by date, route and SKU.
func (r *DemandRepository) List(ctx context.Context) ([]*models.RealizedDemand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT route, demand_date, sku, quantity, updated_at
		FROM realized_demand ORDER BY demand_date, route, sku`)
	if err != nil {
		return nil, fmt.Errorf("querying demand: %w", err)
	}
	defer rows.Close()

	var out []*models.RealizedDemand
	for rows.Next() {
		var (
			d             models.RealizedDemand
			date, updated string
		)
		if err := rows.Scan(&d.Route, &date, &d.SKU, &d.Quantity, &updated); err != nil {
			return nil, fmt.Errorf("scanning demand: %w", err)
		}
		d.Date = parseDate(date)
		d.UpdatedAt = parseTime(updated)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// ============================================================================
// ORDER LINES
// ============================================================================

// CreateOrderLine inserts an order line.
func (r *DemandRepository) CreateOrderLine(ctx context.Context, tx *sql.Tx, o *models.OrderLine) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusDraft
	}
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO order_lines (id, order_ref, route, order_date, sku, quantity, status, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderRef, o.Route, formatDate(o.Date), o.SKU, o.Quantity,
		string(o.Status), boolToInt(o.Processed), formatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting order line: %w", err)
	}
	return nil
}

// PendingOrderLines returns confirmed order lines not yet folded into
// realized demand.
func (r *DemandRepository) PendingOrderLines(ctx context.Context, tx *sql.Tx) ([]*models.OrderLine, error) {
	rows, err := conn(r.db, tx).QueryContext(ctx, `
		SELECT id, order_ref, route, order_date, sku, quantity, status, processed, created_at
		FROM order_lines
		WHERE status = 'CONFIRMED' AND processed = 0
		ORDER BY order_date, route, sku, id`)
	if err != nil {
		return nil, fmt.Errorf("querying order lines: %w", err)
	}
	defer rows.Close()

	var out []*models.OrderLine
	for rows.Next() {
		var (
			o                     models.OrderLine
			date, status, created string
			processed             int
		)
		if err := rows.Scan(&o.ID, &o.OrderRef, &o.Route, &date, &o.SKU, &o.Quantity,
			&status, &processed, &created); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		o.Date = parseDate(date)
		o.Status = models.OrderStatus(status)
		o.Processed = processed == 1
		o.CreatedAt = parseTime(created)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// MarkProcessed flags order lines as aggregated.
func (r *DemandRepository) MarkProcessed(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := conn(r.db, tx).ExecContext(ctx,
		"UPDATE order_lines SET processed = 1 WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return fmt.Errorf("marking order lines processed: %w", err)
	}
	return nil
}

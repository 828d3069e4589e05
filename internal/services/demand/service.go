// Package demand maintains realized demand: the confirmed order quantity per
// route, date and SKU that the shortfall sweep compares indents against.
package demand

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
)

// Service provides realized demand operations.
type Service struct {
	db     *database.DB
	demand *repository.DemandRepository
}

// NewService creates a new demand service.
func NewService(db *database.DB) *Service {
	return &Service{
		db:     db,
		demand: repository.NewDemandRepository(db.DB),
	}
}

// AggregateResult counts what Aggregate folded into realized demand.
type AggregateResult struct {
	OrderLines int
	Rows       int
}

// Aggregate adds every confirmed, unprocessed order line to the realized
// demand of its (route, date, sku) and marks the lines processed. Running it
// again without new orders changes nothing.
func (s *Service) Aggregate(ctx context.Context) (*AggregateResult, error) {
	result := &AggregateResult{}
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		lines, err := s.demand.PendingOrderLines(ctx, tx)
		if err != nil {
			return err
		}

		type key struct {
			route, date, sku string
		}
		totals := make(map[key]decimal.Decimal)
		dates := make(map[key]time.Time)
		var order []key
		ids := make([]string, 0, len(lines))
		for _, l := range lines {
			k := key{l.Route, l.Date.Format(models.DateLayout), l.SKU}
			if _, ok := totals[k]; !ok {
				order = append(order, k)
				dates[k] = l.Date
			}
			totals[k] = totals[k].Add(l.Quantity)
			ids = append(ids, l.ID)
		}

		for _, k := range order {
			if err := s.demand.Add(ctx, tx, k.route, dates[k], k.sku, totals[k]); err != nil {
				return err
			}
		}
		if err := s.demand.MarkProcessed(ctx, tx, ids); err != nil {
			return err
		}
		result.OrderLines = len(lines)
		result.Rows = len(order)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregating orders: %w", err)
	}

	slog.Info("orders aggregated", "order_lines", result.OrderLines, "demand_rows", result.Rows)
	return result, nil
}

// Import stores realized demand rows, replacing existing values for the same
// (route, date, sku). All rows are written or none.
func (s *Service) Import(ctx context.Context, rows []*models.RealizedDemand) (int, error) {
	for i, d := range rows {
		if d.Route == "" || d.SKU == "" || d.Date.IsZero() {
			return 0, reconcile.NewError(reconcile.KindInvalidInput, "row", "row %d: route, date and sku are required", i+1)
		}
		if d.Quantity.IsNegative() {
			return 0, reconcile.NewError(reconcile.KindInvalidInput, "quantity", "row %d: quantity must not be negative", i+1)
		}
	}

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, d := range rows {
			if err := s.demand.Set(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importing demand: %w", err)
	}

	slog.Info("demand imported", "rows", len(rows))
	return len(rows), nil
}

// CreateOrderLine records an order line for later aggregation.
func (s *Service) CreateOrderLine(ctx context.Context, o *models.OrderLine) error {
	return s.demand.CreateOrderLine(ctx, nil, o)
}

// ForGroup returns realized demand per SKU for a route and date.
func (s *Service) ForGroup(ctx context.Context, route string, date time.Time) (map[string]decimal.Decimal, error) {
	return s.demand.ForGroup(ctx, route, date)
}

// List returns every realized demand row.
func (s *Service) List(ctx context.Context) ([]*models.RealizedDemand, error) {
	return s.demand.List(ctx)
}

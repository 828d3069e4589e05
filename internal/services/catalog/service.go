// Package catalog provides the item master and packaging conversion services.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
)

// Service provides item master operations.
type Service struct {
	db    *database.DB
	items *repository.ItemRepository
}

// NewService creates a new catalog service.
func NewService(db *database.DB) *Service {
	return &Service{
		db:    db,
		items: repository.NewItemRepository(db.DB),
	}
}

// ItemInput contains data for creating or replacing an item.
type ItemInput struct {
	SKU               string
	Name              string
	StockUOM          string
	PackagingCapacity *int
	Conversions       map[string]decimal.Decimal
}

// SaveItem creates or replaces an item with its conversions.
func (s *Service) SaveItem(ctx context.Context, input ItemInput) (*models.Item, error) {
	if input.SKU == "" || input.StockUOM == "" {
		return nil, reconcile.NewError(reconcile.KindInvalidInput, "sku", "sku and stock UOM are required")
	}
	if input.PackagingCapacity != nil && *input.PackagingCapacity < 1 {
		return nil, reconcile.NewError(reconcile.KindInvalidInput, "packaging_capacity", "capacity must be at least 1, got %d", *input.PackagingCapacity)
	}

	item := &models.Item{
		SKU:               input.SKU,
		Name:              input.Name,
		StockUOM:          input.StockUOM,
		PackagingCapacity: input.PackagingCapacity,
	}
	for uom, factor := range input.Conversions {
		if !factor.IsPositive() {
			return nil, reconcile.NewError(reconcile.KindInvalidInput, "conversions", "factor for %s must be positive", uom)
		}
		item.Conversions = append(item.Conversions, models.UOMConversion{UOM: uom, Factor: factor})
	}

	if err := s.items.Upsert(ctx, nil, item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	return s.items.GetBySKU(ctx, nil, item.SKU)
}

// GetItem retrieves an item by SKU.
func (s *Service) GetItem(ctx context.Context, sku string) (*models.Item, error) {
	return s.items.GetBySKU(ctx, nil, sku)
}

// ListItems retrieves a page of items.
func (s *Service) ListItems(ctx context.Context, page models.Pagination) (*models.ItemList, error) {
	return s.items.List(ctx, page)
}

// UOMs lists the units an item can be issued in: its stock UOM first, then
// every configured conversion.
func (s *Service) UOMs(ctx context.Context, sku string) ([]string, error) {
	item, err := s.items.GetBySKU(ctx, nil, sku)
	if err != nil {
		return nil, err
	}
	return item.UOMs(), nil
}

// Snapshot loads the whole item master as a reconcile catalog. Pass the
// surrounding transaction when there is one.
func (s *Service) Snapshot(ctx context.Context, tx *sql.Tx) (reconcile.StaticCatalog, error) {
	items, err := s.items.All(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return reconcile.NewStaticCatalog(items), nil
}

// Convert splits quantity of sku into crates and loose units using the
// current item master.
func (s *Service) Convert(ctx context.Context, sku string, quantity decimal.Decimal) (reconcile.Packaging, error) {
	cat, err := s.Snapshot(ctx, nil)
	if err != nil {
		return reconcile.Packaging{}, err
	}
	return reconcile.NewConverter(cat).Convert(sku, quantity)
}

package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// Catalog resolves item master data by SKU.
type Catalog interface {
	Item(sku string) (*models.Item, bool)
}

// StaticCatalog is a Catalog over a preloaded item set.
type StaticCatalog map[string]*models.Item

// NewStaticCatalog indexes items by SKU.
func NewStaticCatalog(items []*models.Item) StaticCatalog {
	c := make(StaticCatalog, len(items))
	for _, it := range items {
		c[it.SKU] = it
	}
	return c
}

// Item implements Catalog.
func (c StaticCatalog) Item(sku string) (*models.Item, bool) {
	it, ok := c[sku]
	return it, ok
}

// Packaging is the crate breakdown of a quantity.
type Packaging struct {
	Capacity  int
	Crates    int64
	Loose     decimal.Decimal
	ActualQty decimal.Decimal
}

// Converter turns quantities into crates and loose units.
type Converter struct {
	catalog Catalog
}

// NewConverter creates a converter backed by catalog.
func NewConverter(catalog Catalog) *Converter {
	return &Converter{catalog: catalog}
}

// Convert breaks quantity of sku into whole crates and a loose remainder.
// ActualQty starts equal to quantity; no difference has been applied yet.
// When sku has no crate conversion the whole quantity is returned as loose
// together with a MissingConfiguration warning.
func (c *Converter) Convert(sku string, quantity decimal.Decimal) (Packaging, error) {
	if sku == "" {
		return Packaging{}, NewError(KindInvalidInput, "sku", "sku is required")
	}
	if !quantity.IsPositive() {
		return Packaging{}, NewError(KindInvalidInput, "quantity", "quantity must be positive, got %s", quantity)
	}

	looseOnly := Packaging{Loose: quantity, ActualQty: quantity}
	item, ok := c.catalog.Item(sku)
	if !ok {
		return looseOnly, NewError(KindMissingConfiguration, "sku", "item %s is not configured", sku)
	}
	if !item.HasPackaging() {
		return looseOnly, NewError(KindMissingConfiguration, "packaging_capacity",
			"no crate conversion found for item %s; all quantity will be treated as loose", sku)
	}

	capacity := *item.PackagingCapacity
	crates, loose := SplitCrates(quantity, capacity)
	return Packaging{
		Capacity:  capacity,
		Crates:    crates,
		Loose:     loose,
		ActualQty: quantity,
	}, nil
}

// SplitCrates divides quantity by capacity. For quantity >= 0 and
// capacity >= 1, crates*capacity + loose == quantity and 0 <= loose < capacity.
func SplitCrates(quantity decimal.Decimal, capacity int) (int64, decimal.Decimal) {
	if capacity < 1 || quantity.IsNegative() {
		return 0, quantity
	}
	q, r := quantity.QuoRem(decimal.NewFromInt(int64(capacity)), 0)
	return q.IntPart(), r
}

// ApplyDifference derives the realized quantity from the planned quantity and
// the observed shortfall. Negative differences are accepted and the result is
// never clamped.
func ApplyDifference(requestedQty, difference decimal.Decimal) decimal.Decimal {
	return requestedQty.Sub(difference)
}

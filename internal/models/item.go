package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the master record for a stock-keeping unit.
type Item struct {
	SKU      string
	Name     string
	StockUOM string // "Nos", "Kg"

	// PackagingCapacity is the number of stock units per crate. Nil when the
	// item has no crate conversion configured.
	PackagingCapacity *int

	Conversions []UOMConversion
	CreatedAt   time.Time
}

// UOMConversion converts one unit of UOM into Factor stock units.
type UOMConversion struct {
	UOM    string
	Factor decimal.Decimal
}

// HasPackaging reports whether a usable crate capacity is configured.
func (i *Item) HasPackaging() bool {
	return i.PackagingCapacity != nil && *i.PackagingCapacity > 0
}

// ConversionFactor returns the factor from uom to the stock UOM.
// The stock UOM always converts with factor 1.
func (i *Item) ConversionFactor(uom string) (decimal.Decimal, bool) {
	if uom == i.StockUOM {
		return decimal.NewFromInt(1), true
	}
	for _, c := range i.Conversions {
		if c.UOM == uom {
			return c.Factor, true
		}
	}
	return decimal.Zero, false
}

// UOMs lists the units an item can be recorded in, stock UOM first.
func (i *Item) UOMs() []string {
	uoms := []string{i.StockUOM}
	for _, c := range i.Conversions {
		if c.UOM != i.StockUOM {
			uoms = append(uoms, c.UOM)
		}
	}
	return uoms
}

// ItemList holds a paginated list of items.
type ItemList struct {
	Items      []*Item
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// FixtureDate is the route date used by fixtures unless overridden.
var FixtureDate = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

// Dec parses a decimal literal, panicking on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// FixtureItem creates a crate-packed item with sensible defaults.
func FixtureItem(overrides ...func(*models.Item)) *models.Item {
	item := &models.Item{
		SKU:               "MILK-500",
		Name:              "Toned Milk 500ml",
		StockUOM:          "Nos",
		PackagingCapacity: IntPtr(24),
		CreatedAt:         time.Now().UTC(),
	}

	for _, override := range overrides {
		override(item)
	}

	return item
}

// FixtureLooseItem creates an item without packaging configuration.
func FixtureLooseItem(overrides ...func(*models.Item)) *models.Item {
	return FixtureItem(append([]func(*models.Item){
		func(i *models.Item) {
			i.SKU = "GHEE-1L"
			i.Name = "Ghee 1L"
			i.PackagingCapacity = nil
		},
	}, overrides...)...)
}

// FixtureKgItem creates an item stocked in Kg with a Crate conversion.
func FixtureKgItem(overrides ...func(*models.Item)) *models.Item {
	return FixtureItem(append([]func(*models.Item){
		func(i *models.Item) {
			i.SKU = "CURD-1K"
			i.Name = "Curd 1Kg"
			i.StockUOM = "Kg"
			i.PackagingCapacity = IntPtr(12)
			i.Conversions = []models.UOMConversion{{UOM: "Crate", Factor: decimal.NewFromInt(12)}}
		},
	}, overrides...)...)
}

// FixtureIndent creates an unprocessed indent with no lines.
func FixtureIndent(overrides ...func(*models.Indent)) *models.Indent {
	indent := &models.Indent{
		ID:        uuid.New().String(),
		Route:     "R-NORTH",
		Date:      FixtureDate,
		Facility:  "Outlet 7",
		Status:    models.IndentStatusUnprocessed,
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(indent)
	}

	return indent
}

// FixtureIndentLine creates an indent line for sku whose actual quantity
// equals qty.
func FixtureIndentLine(sku string, qty decimal.Decimal, overrides ...func(*models.IndentLine)) models.IndentLine {
	line := models.IndentLine{
		ID:           uuid.New().String(),
		SKU:          sku,
		UOM:          "Nos",
		RequestedQty: qty,
		Loose:        qty,
		ActualQty:    qty,
	}

	for _, override := range overrides {
		override(&line)
	}

	return line
}

// FixtureDeliveryNote creates a delivery note with one MILK-500 item of 48
// Nos.
func FixtureDeliveryNote(overrides ...func(*models.DeliveryNote)) *models.DeliveryNote {
	note := &models.DeliveryNote{
		ID:    uuid.New().String(),
		Route: "R-NORTH",
		Date:  FixtureDate,
		Items: []models.DeliveryNoteItem{{
			ItemCode:         "MILK-500",
			UOM:              "Nos",
			StockUOM:         "Nos",
			Qty:              decimal.NewFromInt(48),
			ConversionFactor: decimal.NewFromInt(1),
			StockQty:         decimal.NewFromInt(48),
		}},
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(note)
	}

	return note
}

// FixtureIssueNote creates a draft issue note for a delivery note.
func FixtureIssueNote(deliveryNoteID string, overrides ...func(*models.DeliveryIssueNote)) *models.DeliveryIssueNote {
	note := &models.DeliveryIssueNote{
		ID:             uuid.New().String(),
		DeliveryNoteID: deliveryNoteID,
		Status:         models.IssueNoteStatusDraft,
		CreatedAt:      time.Now().UTC(),
	}

	for _, override := range overrides {
		override(note)
	}

	return note
}

// FixtureIssueLine creates an owned issue line with 48 delivered units.
func FixtureIssueLine(noteID string, overrides ...func(*models.DeliveryIssueLine)) *models.DeliveryIssueLine {
	line := &models.DeliveryIssueLine{
		ID:                uuid.New().String(),
		NoteID:            noteID,
		ItemCode:          "MILK-500",
		UOM:               "Nos",
		StockUOM:          "Nos",
		ConversionFactor:  decimal.NewFromInt(1),
		Qty:               decimal.NewFromInt(48),
		StockQty:          decimal.NewFromInt(48),
		DeliveredQty:      decimal.NewFromInt(48),
		BelongsToDelivery: true,
	}

	for _, override := range overrides {
		override(line)
	}

	return line
}

// FixtureOrderLine creates a confirmed, unprocessed order line.
func FixtureOrderLine(overrides ...func(*models.OrderLine)) *models.OrderLine {
	o := &models.OrderLine{
		ID:        uuid.New().String(),
		OrderRef:  "SO-0001",
		Route:     "R-NORTH",
		Date:      FixtureDate,
		SKU:       "MILK-500",
		Quantity:  decimal.NewFromInt(10),
		Status:    models.OrderStatusConfirmed,
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(o)
	}

	return o
}

package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// IndentField is an input field of an indent line.
type IndentField string

const (
	IndentFieldSKU          IndentField = "sku"
	IndentFieldRequestedQty IndentField = "requested_qty"
	IndentFieldDifference   IndentField = "difference"
)

type indentStep int

const (
	stepPackaging indentStep = iota
	stepActual
)

// indentLineDeps lists, per input field, the derived values recomputed after
// it changes, in order.
var indentLineDeps = map[IndentField][]indentStep{
	IndentFieldSKU:          {stepPackaging, stepActual},
	IndentFieldRequestedQty: {stepPackaging, stepActual},
	IndentFieldDifference:   {stepActual},
}

// IndentLineEditor applies typed edits to indent lines and recomputes the
// dependent fields.
type IndentLineEditor struct {
	converter *Converter
}

// NewIndentLineEditor creates an editor that converts through converter.
func NewIndentLineEditor(converter *Converter) *IndentLineEditor {
	return &IndentLineEditor{converter: converter}
}

// SetSKU changes the SKU and repackages the line. An SKU missing from the
// catalog is kept and reported as a MissingConfiguration warning.
func (e *IndentLineEditor) SetSKU(line models.IndentLine, sku string) (models.IndentLine, error) {
	if sku == "" {
		return line, NewError(KindInvalidInput, string(IndentFieldSKU), "sku is required")
	}
	line.SKU = sku
	item, known := e.converter.catalog.Item(sku)
	if known {
		line.UOM = item.StockUOM
	}
	line, err := e.recompute(line, IndentFieldSKU)
	if err == nil && !known {
		err = NewError(KindMissingConfiguration, string(IndentFieldSKU), "item %s is not configured", sku)
	}
	return line, err
}

// SetRequestedQty changes the requested quantity and repackages the line.
// Negative quantities are rejected and the line is returned unchanged.
func (e *IndentLineEditor) SetRequestedQty(line models.IndentLine, qty decimal.Decimal) (models.IndentLine, error) {
	if qty.IsNegative() {
		return line, NewError(KindInvalidInput, string(IndentFieldRequestedQty), "quantity must not be negative, got %s", qty)
	}
	line.RequestedQty = qty
	return e.recompute(line, IndentFieldRequestedQty)
}

// SetDifference records a shortfall and recomputes the actual quantity.
func (e *IndentLineEditor) SetDifference(line models.IndentLine, difference decimal.Decimal) (models.IndentLine, error) {
	line.Difference = difference
	return e.recompute(line, IndentFieldDifference)
}

// Recompute re-runs every derived value of line as if field had changed.
func (e *IndentLineEditor) Recompute(line models.IndentLine, field IndentField) (models.IndentLine, error) {
	return e.recompute(line, field)
}

func (e *IndentLineEditor) recompute(line models.IndentLine, field IndentField) (models.IndentLine, error) {
	var warning error
	for _, step := range indentLineDeps[field] {
		switch step {
		case stepPackaging:
			if err := e.repackage(&line); err != nil {
				warning = err
			}
		case stepActual:
			line.ActualQty = ApplyDifference(line.RequestedQty, line.Difference)
		}
	}
	return line, warning
}

// repackage converts the requested quantity. A fresh conversion discards any
// earlier shortfall. Without a crate conversion the whole quantity is loose,
// the capacity stays unset and the warning is returned.
func (e *IndentLineEditor) repackage(line *models.IndentLine) error {
	line.Difference = decimal.Zero
	line.Crates = 0
	line.Loose = decimal.Zero
	line.PackagingCapacity = nil

	if line.RequestedQty.IsZero() {
		return nil
	}

	p, err := e.converter.Convert(line.SKU, line.RequestedQty)
	if err != nil {
		if IsWarning(err) {
			line.Loose = p.Loose
		}
		return err
	}

	capacity := p.Capacity
	line.PackagingCapacity = &capacity
	line.Crates = p.Crates
	line.Loose = p.Loose
	return nil
}

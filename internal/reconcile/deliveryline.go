package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// DeliverySource looks up what the delivery record says was delivered.
type DeliverySource interface {
	Item(itemCode string) (models.DeliveryNoteItem, bool)
}

type deliveryStep int

const (
	stepDelivered deliveryStep = iota
	stepDefaultUOM
	stepFactor
	stepStockQty
	stepCheck
	stepValidate
)

// deliveryLineDeps lists, per input field, the derived values recomputed
// after it changes, in order.
var deliveryLineDeps = map[DeliveryField][]deliveryStep{
	DeliveryFieldItemCode:         {stepDelivered, stepDefaultUOM, stepFactor, stepStockQty, stepCheck},
	DeliveryFieldUOM:              {stepFactor, stepStockQty},
	DeliveryFieldQty:              {stepStockQty},
	DeliveryFieldConversionFactor: {stepStockQty},
	DeliveryFieldMissingQty:       {stepValidate},
	DeliveryFieldDamagedQty:       {stepValidate},
	DeliveryFieldExcessQty:        {stepValidate},
}

// DeliveryLineEditor applies typed edits to delivery issue lines, recomputes
// dependent fields and validates the result.
type DeliveryLineEditor struct {
	catalog   Catalog
	source    DeliverySource
	validator Validator
}

// NewDeliveryLineEditor creates an editor for lines of a note raised against
// source.
func NewDeliveryLineEditor(catalog Catalog, source DeliverySource) *DeliveryLineEditor {
	return &DeliveryLineEditor{catalog: catalog, source: source}
}

// SetItemCode changes the item of a freestanding line. Lines sourced from the
// delivery record keep their item.
func (e *DeliveryLineEditor) SetItemCode(line models.DeliveryIssueLine, itemCode string) (models.DeliveryIssueLine, error) {
	if line.BelongsToDelivery && itemCode != line.ItemCode {
		return line, NewError(KindProtectedRecord, string(DeliveryFieldItemCode), "item of a delivery note line cannot be changed")
	}
	if itemCode == "" {
		return line, NewError(KindInvalidInput, string(DeliveryFieldItemCode), "item code is required")
	}
	line.ItemCode = itemCode
	return e.recompute(line, Change{Field: DeliveryFieldItemCode})
}

// SetUOM changes the unit the row quantity is recorded in.
func (e *DeliveryLineEditor) SetUOM(line models.DeliveryIssueLine, uom string) (models.DeliveryIssueLine, error) {
	line.UOM = uom
	return e.recompute(line, Change{Field: DeliveryFieldUOM})
}

// SetQty changes the row quantity.
func (e *DeliveryLineEditor) SetQty(line models.DeliveryIssueLine, qty decimal.Decimal) (models.DeliveryIssueLine, error) {
	if qty.IsNegative() {
		return line, NewError(KindInvalidInput, string(DeliveryFieldQty), "quantity must not be negative, got %s", qty)
	}
	line.Qty = qty
	return e.recompute(line, Change{Field: DeliveryFieldQty})
}

// SetConversionFactor overrides the UOM conversion factor.
func (e *DeliveryLineEditor) SetConversionFactor(line models.DeliveryIssueLine, factor decimal.Decimal) (models.DeliveryIssueLine, error) {
	if !factor.IsPositive() {
		return line, NewError(KindInvalidInput, string(DeliveryFieldConversionFactor), "conversion factor must be positive, got %s", factor)
	}
	line.ConversionFactor = factor
	return e.recompute(line, Change{Field: DeliveryFieldConversionFactor})
}

// SetMissingQty records missing units.
func (e *DeliveryLineEditor) SetMissingQty(line models.DeliveryIssueLine, qty decimal.Decimal) (models.DeliveryIssueLine, error) {
	prior := line.MissingQty
	line.MissingQty = qty
	return e.recompute(line, Change{Field: DeliveryFieldMissingQty, Prior: prior})
}

// SetDamagedQty records damaged units.
func (e *DeliveryLineEditor) SetDamagedQty(line models.DeliveryIssueLine, qty decimal.Decimal) (models.DeliveryIssueLine, error) {
	prior := line.DamagedQty
	line.DamagedQty = qty
	return e.recompute(line, Change{Field: DeliveryFieldDamagedQty, Prior: prior})
}

// SetExcessQty records excess units.
func (e *DeliveryLineEditor) SetExcessQty(line models.DeliveryIssueLine, qty decimal.Decimal) (models.DeliveryIssueLine, error) {
	prior := line.ExcessQty
	line.ExcessQty = qty
	return e.recompute(line, Change{Field: DeliveryFieldExcessQty, Prior: prior})
}

func (e *DeliveryLineEditor) recompute(line models.DeliveryIssueLine, change Change) (models.DeliveryIssueLine, error) {
	var result error
	for _, step := range deliveryLineDeps[change.Field] {
		var err error
		switch step {
		case stepDelivered:
			line.DeliveredQty = decimal.Zero
			if e.source != nil {
				if it, ok := e.source.Item(line.ItemCode); ok {
					line.DeliveredQty = it.Qty
				}
			}
		case stepDefaultUOM:
			item, ok := e.catalog.Item(line.ItemCode)
			if !ok {
				return line, NewError(KindMissingConfiguration, string(DeliveryFieldItemCode), "item %s is not configured", line.ItemCode)
			}
			line.StockUOM = item.StockUOM
			line.UOM = item.StockUOM
		case stepFactor:
			err = e.resolveFactor(&line)
		case stepStockQty:
			line.StockQty = line.Qty.Mul(line.ConversionFactor)
		case stepCheck:
			err = e.validator.Check(line)
		case stepValidate:
			line, err = e.validator.ValidateLine(line, change)
		}
		if err != nil && result == nil {
			result = err
		}
	}
	return line, result
}

func (e *DeliveryLineEditor) resolveFactor(line *models.DeliveryIssueLine) error {
	item, ok := e.catalog.Item(line.ItemCode)
	if !ok {
		return NewError(KindMissingConfiguration, string(DeliveryFieldItemCode), "item %s is not configured", line.ItemCode)
	}
	factor, ok := item.ConversionFactor(line.UOM)
	if !ok {
		return NewError(KindMissingConfiguration, string(DeliveryFieldUOM), "no conversion from %s to %s for item %s", line.UOM, item.StockUOM, item.SKU)
	}
	line.StockUOM = item.StockUOM
	line.ConversionFactor = factor
	return nil
}

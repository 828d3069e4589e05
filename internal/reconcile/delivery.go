package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// DeliveryField is an input field of a delivery issue line.
type DeliveryField string

const (
	DeliveryFieldItemCode         DeliveryField = "item_code"
	DeliveryFieldUOM              DeliveryField = "uom"
	DeliveryFieldQty              DeliveryField = "qty"
	DeliveryFieldConversionFactor DeliveryField = "conversion_factor"
	DeliveryFieldMissingQty       DeliveryField = "missing_qty"
	DeliveryFieldDamagedQty       DeliveryField = "damaged_qty"
	DeliveryFieldExcessQty        DeliveryField = "excess_qty"
)

// Corrective reports whether f is one of the missing, damaged or excess
// quantities.
func (f DeliveryField) Corrective() bool {
	switch f {
	case DeliveryFieldMissingQty, DeliveryFieldDamagedQty, DeliveryFieldExcessQty:
		return true
	}
	return false
}

// Change describes the edit that triggered validation: the field and the
// value it held before.
type Change struct {
	Field DeliveryField
	Prior decimal.Decimal
}

// Validator enforces the delivery issue line rules.
//
//   - Owned lines never carry excess.
//   - Freestanding lines never carry missing.
//   - On owned lines, missing + damaged never exceeds delivered + excess.
type Validator struct{}

// Check reports the first rule the line breaks without changing it.
func (Validator) Check(line models.DeliveryIssueLine) error {
	if f, ok := negativeField(line); ok {
		return NewError(KindInvalidInput, string(f), "quantity must not be negative")
	}
	if line.BelongsToDelivery && line.ExcessQty.IsPositive() {
		return excessOnOwnedLine()
	}
	if !line.BelongsToDelivery && line.MissingQty.IsPositive() {
		return missingOnFreeLine()
	}
	if line.BelongsToDelivery && line.CorrectiveTotal().GreaterThan(line.Available()) {
		return quantityExceeded(line, "")
	}
	return nil
}

// ValidateLine checks line after change and returns a corrected copy.
// Ownership violations reset the offending quantity to 0. A capacity
// violation reverts the changed field to its prior value. Changes to
// non-corrective fields are reported without correction.
func (v Validator) ValidateLine(line models.DeliveryIssueLine, change Change) (models.DeliveryIssueLine, error) {
	if !change.Field.Corrective() {
		return line, v.Check(line)
	}

	if value := correctiveValue(line, change.Field); value.IsNegative() {
		setCorrective(&line, change.Field, revertValue(change.Prior))
		return line, NewError(KindInvalidInput, string(change.Field), "quantity must not be negative, got %s", value)
	}

	if line.BelongsToDelivery && line.ExcessQty.IsPositive() {
		line.ExcessQty = decimal.Zero
		return line, excessOnOwnedLine()
	}
	if !line.BelongsToDelivery && line.MissingQty.IsPositive() {
		line.MissingQty = decimal.Zero
		return line, missingOnFreeLine()
	}
	if line.BelongsToDelivery && line.CorrectiveTotal().GreaterThan(line.Available()) {
		err := quantityExceeded(line, change.Field)
		setCorrective(&line, change.Field, revertValue(change.Prior))
		if line.CorrectiveTotal().GreaterThan(line.Available()) {
			setCorrective(&line, change.Field, decimal.Zero)
		}
		return line, err
	}
	return line, nil
}

// CheckDelete refuses to remove lines sourced from the delivery record.
func CheckDelete(line models.DeliveryIssueLine) error {
	if line.BelongsToDelivery {
		return NewError(KindProtectedRecord, "", "line for %s belongs to the delivery note and can only be replaced by regenerating from it", line.ItemCode)
	}
	return nil
}

func excessOnOwnedLine() *Error {
	return NewError(KindOwnershipViolation, string(DeliveryFieldExcessQty),
		"excess cannot be recorded on items that are part of the delivery note; add a new row for excess items")
}

func missingOnFreeLine() *Error {
	return NewError(KindOwnershipViolation, string(DeliveryFieldMissingQty),
		"missing cannot be recorded on items that are not part of the delivery note")
}

func quantityExceeded(line models.DeliveryIssueLine, field DeliveryField) *Error {
	return NewError(KindQuantityExceeded, string(field),
		"total of missing and damaged (%s) cannot exceed delivered quantity (%s)",
		line.CorrectiveTotal(), line.Available())
}

func negativeField(line models.DeliveryIssueLine) (DeliveryField, bool) {
	switch {
	case line.MissingQty.IsNegative():
		return DeliveryFieldMissingQty, true
	case line.DamagedQty.IsNegative():
		return DeliveryFieldDamagedQty, true
	case line.ExcessQty.IsNegative():
		return DeliveryFieldExcessQty, true
	}
	return "", false
}

func correctiveValue(line models.DeliveryIssueLine, f DeliveryField) decimal.Decimal {
	switch f {
	case DeliveryFieldMissingQty:
		return line.MissingQty
	case DeliveryFieldDamagedQty:
		return line.DamagedQty
	case DeliveryFieldExcessQty:
		return line.ExcessQty
	}
	return decimal.Zero
}

func setCorrective(line *models.DeliveryIssueLine, f DeliveryField, v decimal.Decimal) {
	switch f {
	case DeliveryFieldMissingQty:
		line.MissingQty = v
	case DeliveryFieldDamagedQty:
		line.DamagedQty = v
	case DeliveryFieldExcessQty:
		line.ExcessQty = v
	}
}

// revertValue falls back to 0 when the prior value is itself unusable.
func revertValue(prior decimal.Decimal) decimal.Decimal {
	if prior.IsNegative() {
		return decimal.Zero
	}
	return prior
}

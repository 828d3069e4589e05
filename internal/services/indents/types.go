package indents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// CreateIndentInput contains data for creating a source indent.
type CreateIndentInput struct {
	Route    string
	Date     time.Time
	Facility string
	Lines    []LineInput
}

// LineInput is a requested SKU quantity. Difference is optional.
type LineInput struct {
	SKU          string
	RequestedQty decimal.Decimal
	Difference   decimal.Decimal
}

// CreateIndentResult is the created indent plus any packaging warnings
// raised while converting its lines.
type CreateIndentResult struct {
	Indent   *models.Indent
	Warnings []string
}

// PrePopulateResult counts the lines added by PrePopulate.
type PrePopulateResult struct {
	Added   int
	Skipped int
}

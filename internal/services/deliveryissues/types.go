package deliveryissues

import (
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// AddLineInput contains data for a freestanding issue line. UOM defaults to
// the item's stock UOM.
type AddLineInput struct {
	ItemCode   string
	UOM        string
	Qty        decimal.Decimal
	ExcessQty  decimal.Decimal
	DamagedQty decimal.Decimal
}

// SubmitResult lists the stock movements written by Submit.
type SubmitResult struct {
	NoteID    string
	Movements []*models.StockMovement
}

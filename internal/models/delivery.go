package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryNote is the source delivery record an issue note is raised against.
type DeliveryNote struct {
	ID        string
	Route     string
	Date      time.Time
	Items     []DeliveryNoteItem
	CreatedAt time.Time
}

// Item returns the delivered row for itemCode.
func (n *DeliveryNote) Item(itemCode string) (DeliveryNoteItem, bool) {
	for _, it := range n.Items {
		if it.ItemCode == itemCode {
			return it, true
		}
	}
	return DeliveryNoteItem{}, false
}

// DeliveryNoteItem is one delivered row.
type DeliveryNoteItem struct {
	ItemCode         string
	UOM              string
	StockUOM         string
	Qty              decimal.Decimal
	ConversionFactor decimal.Decimal
	StockQty         decimal.Decimal
}

// IssueNoteStatus is the lifecycle state of a delivery issue note.
type IssueNoteStatus string

const (
	IssueNoteStatusDraft     IssueNoteStatus = "DRAFT"
	IssueNoteStatusSubmitted IssueNoteStatus = "SUBMITTED"
)

func (s IssueNoteStatus) String() string {
	return string(s)
}

// DeliveryIssueNote records missing, damaged and excess items found during or
// after a delivery.
type DeliveryIssueNote struct {
	ID             string
	DeliveryNoteID string
	Status         IssueNoteStatus
	Lines          []DeliveryIssueLine
	CreatedAt      time.Time
	SubmittedAt    *time.Time
}

// DeliveryIssueLine is one row of a delivery issue note.
type DeliveryIssueLine struct {
	ID               string
	NoteID           string
	Idx              int
	ItemCode         string
	UOM              string
	StockUOM         string
	ConversionFactor decimal.Decimal
	Qty              decimal.Decimal
	StockQty         decimal.Decimal

	// DeliveredQty is fixed by the delivery record.
	DeliveredQty decimal.Decimal
	MissingQty   decimal.Decimal
	DamagedQty   decimal.Decimal
	ExcessQty    decimal.Decimal

	// BelongsToDelivery marks rows generated from the delivery record.
	// Freestanding rows carry excess items only.
	BelongsToDelivery bool
}

// CorrectiveTotal is missing plus damaged.
func (l *DeliveryIssueLine) CorrectiveTotal() decimal.Decimal {
	return l.MissingQty.Add(l.DamagedQty)
}

// Available is what was physically available to be reported missing or
// damaged.
func (l *DeliveryIssueLine) Available() decimal.Decimal {
	return l.DeliveredQty.Add(l.ExcessQty)
}

// StockMovementTarget names where a corrective quantity is moved on submit.
type StockMovementTarget string

const (
	StockTargetMissing StockMovementTarget = "MISSING"
	StockTargetDamaged StockMovementTarget = "DAMAGED"
)

// StockMovement is a stock transfer produced by submitting an issue note.
type StockMovement struct {
	ID          string
	IssueNoteID string
	ItemCode    string
	Quantity    decimal.Decimal
	Target      StockMovementTarget
	CreatedAt   time.Time
}

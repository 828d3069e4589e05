package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RealizedDemand is the confirmed order quantity for a SKU on a route and date.
type RealizedDemand struct {
	Route     string
	Date      time.Time
	SKU       string
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// GroupKey returns the (route, date) key of the demand row.
func (d *RealizedDemand) GroupKey() GroupKey {
	return NewGroupKey(d.Route, d.Date)
}

// OrderStatus is the intake state of an order line.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderLine is one SKU row of a customer order. Confirmed lines are
// aggregated into realized demand once.
type OrderLine struct {
	ID        string
	OrderRef  string
	Route     string
	Date      time.Time
	SKU       string
	Quantity  decimal.Decimal
	Status    OrderStatus
	Processed bool
	CreatedAt time.Time
}

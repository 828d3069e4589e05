package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IndentStatus tracks an indent through the shortfall sweep.
type IndentStatus string

const (
	IndentStatusUnprocessed       IndentStatus = "UNPROCESSED"
	IndentStatusProcessedNoAction IndentStatus = "PROCESSED_NO_ACTION"
	IndentStatusProcessed         IndentStatus = "PROCESSED"
)

func (s IndentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the sweep must never revisit an indent in s.
func (s IndentStatus) IsTerminal() bool {
	return s == IndentStatusProcessedNoAction || s == IndentStatusProcessed
}

// Valid reports whether s is a known status.
func (s IndentStatus) Valid() bool {
	switch s {
	case IndentStatusUnprocessed, IndentStatusProcessedNoAction, IndentStatusProcessed:
		return true
	}
	return false
}

// Indent is a request for production or stock for a route and date.
type Indent struct {
	ID       string
	Route    string
	Date     time.Time
	Facility string
	Status   IndentStatus

	// Adjusted indents are derived by the shortfall sweep and are never
	// candidates for it themselves.
	IsAdjusted     bool
	SourceIndentID *string

	Lines       []IndentLine
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// GroupKey returns the (route, date) key the sweep groups by.
func (i *Indent) GroupKey() GroupKey {
	return NewGroupKey(i.Route, i.Date)
}

// SKUs returns the distinct SKUs on the indent in line order.
func (i *Indent) SKUs() []string {
	seen := make(map[string]bool, len(i.Lines))
	var skus []string
	for _, l := range i.Lines {
		if l.SKU == "" || seen[l.SKU] {
			continue
		}
		seen[l.SKU] = true
		skus = append(skus, l.SKU)
	}
	return skus
}

// HasSKU reports whether any line carries sku.
func (i *Indent) HasSKU(sku string) bool {
	for _, l := range i.Lines {
		if l.SKU == sku {
			return true
		}
	}
	return false
}

// HasPositiveLine reports whether at least one line requests a quantity.
// Indents without one are not ready for plant approval.
func (i *Indent) HasPositiveLine() bool {
	for _, l := range i.Lines {
		if l.RequestedQty.IsPositive() {
			return true
		}
	}
	return false
}

// IndentLine is one SKU row of an indent.
type IndentLine struct {
	ID           string
	IndentID     string
	Idx          int
	SKU          string
	UOM          string
	RequestedQty decimal.Decimal

	// PackagingCapacity is the capacity used for the last conversion.
	PackagingCapacity *int
	Crates            int64
	Loose             decimal.Decimal

	// Difference is the observed shortfall against RequestedQty.
	Difference decimal.Decimal
	ActualQty  decimal.Decimal
}

// PackagingConsistent reports whether crates and loose add back up to the
// requested quantity. Lines without a capacity or quantity are trivially
// consistent.
func (l *IndentLine) PackagingConsistent() bool {
	if l.PackagingCapacity == nil || !l.RequestedQty.IsPositive() {
		return true
	}
	capacity := decimal.NewFromInt(int64(*l.PackagingCapacity))
	return decimal.NewFromInt(l.Crates).Mul(capacity).Add(l.Loose).Equal(l.RequestedQty)
}

// IndentFilter holds filter criteria for listing indents.
type IndentFilter struct {
	Status          IndentStatus
	Route           string
	Date            *time.Time
	IncludeAdjusted bool
}

// IndentList holds a paginated list of indents.
type IndentList struct {
	Indents    []*Indent
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// IndentStatusCounts summarizes indents by status.
type IndentStatusCounts struct {
	Unprocessed       int
	ProcessedNoAction int
	Processed         int
	Adjusted          int
}

// Package report renders reconciliation results for people: terminal tables
// for the CLI and spreadsheets for demand import and sweep export.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
)

// WriteSweepSummary prints the counts of a sweep run followed by one row per
// outcome.
func WriteSweepSummary(w io.Writer, s *models.SweepSummary) {
	fmt.Fprintf(w, "Sweep %s finished in %s\n", s.RunID, s.Duration())

	counts := table.NewWriter()
	counts.SetOutputMirror(w)
	counts.AppendHeader(table.Row{"Processed", "Created", "With shortfall", "No shortfall", "Already adjusted", "Errors"})
	counts.AppendRow(table.Row{s.Processed, s.Created, s.WithShortfall, s.WithoutShortfall, s.AlreadyAdjusted, s.Errors})
	counts.Render()

	if len(s.Details) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Indent", "Route", "Date", "Status", "Adjusted indent", "Lines", "Message"})
	for _, o := range s.Details {
		msg := o.Message
		if len(o.Warnings) > 0 {
			msg = strings.TrimSpace(msg + " " + strings.Join(o.Warnings, "; "))
		}
		tw.AppendRow(table.Row{o.IndentID, o.Route, o.Date, o.Status, o.AdjustedIndentID, o.ShortfallLines, msg})
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// WritePackaging prints the crate split of a quantity.
func WritePackaging(w io.Writer, sku string, quantity decimal.Decimal, p reconcile.Packaging) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"SKU", "Quantity", "Crate capacity", "Crates", "Loose"})
	tw.AppendRow(table.Row{sku, quantity.String(), p.Capacity, p.Crates, p.Loose.String()})
	tw.Render()
}

// WriteDifference prints a requested quantity, its shortfall and the actual
// quantity left.
func WriteDifference(w io.Writer, requested, difference decimal.Decimal) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Requested", "Difference", "Actual"})
	tw.AppendRow(table.Row{requested.String(), difference.String(), reconcile.ApplyDifference(requested, difference).String()})
	tw.Render()
}

// WriteIssueLine prints the quantities of a delivery issue line.
func WriteIssueLine(w io.Writer, l models.DeliveryIssueLine) {
	owned := "no"
	if l.BelongsToDelivery {
		owned = "yes"
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Item", "Owned", "Delivered", "Missing", "Damaged", "Excess"})
	tw.AppendRow(table.Row{l.ItemCode, owned, l.DeliveredQty.String(), l.MissingQty.String(), l.DamagedQty.String(), l.ExcessQty.String()})
	tw.Render()
}

// WriteDemand prints realized demand rows.
func WriteDemand(w io.Writer, rows []*models.RealizedDemand) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Route", "Date", "SKU", "Quantity"})
	for _, d := range rows {
		tw.AppendRow(table.Row{d.Route, d.Date.Format(models.DateLayout), d.SKU, d.Quantity.String()})
	}
	tw.Render()
}

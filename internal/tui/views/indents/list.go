// Package indents provides console views over indents and their lines.
package indents

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/tui/components"
)

// Lister is the part of the indents service the view reads from.
type Lister interface {
	ListIndents(ctx context.Context, filter models.IndentFilter, page models.Pagination) (*models.IndentList, error)
}

// statusCycle is the order the status filter steps through. The empty
// status shows everything.
var statusCycle = []models.IndentStatus{
	"",
	models.IndentStatusUnprocessed,
	models.IndentStatusProcessed,
	models.IndentStatusProcessedNoAction,
}

// ListView displays indents with a status and route filter.
type ListView struct {
	service Lister
	table   *components.Table
	indents []*models.Indent
	page    models.Pagination
	filter  models.IndentFilter
	loading bool
	err     error
}

// NewListView creates an indent list view.
func NewListView(service Lister) *ListView {
	columns := []components.Column{
		{Title: "Date", Width: 10},
		{Title: "Route", Width: 12},
		{Title: "Facility", Width: 16},
		{Title: "Lines", Width: 5, Align: lipgloss.Right},
		{Title: "Status", Width: 19},
		{Title: "Kind", Width: 8},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(20)
	table.Focus(true)

	return &ListView{
		service: service,
		table:   table,
		page:    models.Pagination{Page: 1, PageSize: 20},
	}
}

// Load fetches the current page of indents.
func (v *ListView) Load(ctx context.Context) error {
	if v.service == nil {
		return nil
	}
	v.loading = true
	v.err = nil

	result, err := v.service.ListIndents(ctx, v.filter, v.page)
	v.loading = false
	if err != nil {
		v.err = err
		return err
	}
	v.SetIndents(result)
	return nil
}

// SetIndents replaces the listed indents.
func (v *ListView) SetIndents(result *models.IndentList) {
	v.indents = result.Indents
	rows := make([][]string, len(v.indents))
	for i, ind := range v.indents {
		kind := "source"
		if ind.IsAdjusted {
			kind = "adjusted"
		}
		rows[i] = []string{
			ind.Date.Format(models.DateLayout),
			ind.Route,
			ind.Facility,
			fmt.Sprintf("%d", len(ind.Lines)),
			ind.Status.String(),
			kind,
		}
	}
	v.table.SetRows(rows)
	v.table.SetPagination(result.Page, result.TotalPages, result.Total)
}

// CycleStatus steps the status filter and returns to the first page.
func (v *ListView) CycleStatus() {
	for i, s := range statusCycle {
		if s == v.filter.Status {
			v.filter.Status = statusCycle[(i+1)%len(statusCycle)]
			break
		}
	}
	v.page.Page = 1
}

// ToggleAdjusted shows or hides adjusted indents.
func (v *ListView) ToggleAdjusted() {
	v.filter.IncludeAdjusted = !v.filter.IncludeAdjusted
	v.page.Page = 1
}

// SetRoute filters by route. An empty route clears the filter.
func (v *ListView) SetRoute(route string) {
	v.filter.Route = strings.TrimSpace(route)
	v.page.Page = 1
}

// Filter returns the active filter.
func (v *ListView) Filter() models.IndentFilter {
	return v.filter
}

// SetVisibleRows sets how many table rows are drawn.
func (v *ListView) SetVisibleRows(n int) {
	v.table.SetVisibleRows(n)
}

// NextPage moves to the next page.
func (v *ListView) NextPage() {
	v.page.Page++
}

// PrevPage moves to the previous page.
func (v *ListView) PrevPage() {
	if v.page.Page > 1 {
		v.page.Page--
	}
}

// MoveUp moves the selection up.
func (v *ListView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *ListView) MoveDown() {
	v.table.MoveDown()
}

// Selected returns the selected indent.
func (v *ListView) Selected() *models.Indent {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.indents) {
		return v.indents[idx]
	}
	return nil
}

// Render renders the list.
func (v *ListView) Render(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	labelStyle := lipgloss.NewStyle().Faint(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))

	var b strings.Builder
	b.WriteString(titleStyle.Render("=== INDENTS ==="))
	b.WriteString("\n\n")

	status := "all"
	if v.filter.Status != "" {
		status = v.filter.Status.String()
	}
	route := "all"
	if v.filter.Route != "" {
		route = v.filter.Route
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("Status: %s  Route: %s  Adjusted: %t", status, route, v.filter.IncludeAdjusted)))
	b.WriteString("\n\n")

	if v.err != nil {
		b.WriteString(errStyle.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	}

	switch {
	case v.loading:
		b.WriteString(labelStyle.Render("Loading..."))
		b.WriteString("\n")
	case v.table.Empty():
		b.WriteString(labelStyle.Render("No indents found."))
		b.WriteString("\n")
	default:
		b.WriteString(v.table.Render())
	}

	b.WriteString("\n")
	if width < 80 {
		b.WriteString(labelStyle.Render("Enter:View s:Status a:Adj /:Route"))
	} else {
		b.WriteString(labelStyle.Render("Up/Down:Select  Enter:Lines  s:Status  a:Adjusted  /:Route  PgUp/Dn:Page"))
	}
	return b.String()
}

// RenderDetail renders an indent with its packaged lines.
func (v *ListView) RenderDetail(ind *models.Indent) string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	labelStyle := lipgloss.NewStyle().Faint(true).Width(14)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454"))

	if ind == nil {
		return labelStyle.Render("No indent selected")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("=== INDENT " + ind.ID + " ==="))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Route:") + " " + ind.Route + "\n")
	b.WriteString(labelStyle.Render("Date:") + " " + ind.Date.Format(models.DateLayout) + "\n")
	b.WriteString(labelStyle.Render("Facility:") + " " + ind.Facility + "\n")
	b.WriteString(labelStyle.Render("Status:") + " " + ind.Status.String() + "\n")
	if ind.SourceIndentID != nil {
		b.WriteString(labelStyle.Render("Adjusts:") + " " + *ind.SourceIndentID + "\n")
	}
	b.WriteString("\n")

	lines := components.NewTable([]components.Column{
		{Title: "SKU", Width: 12},
		{Title: "Requested", Width: 9, Align: lipgloss.Right},
		{Title: "Crates", Width: 6, Align: lipgloss.Right},
		{Title: "Loose", Width: 6, Align: lipgloss.Right},
		{Title: "Diff", Width: 6, Align: lipgloss.Right},
		{Title: "Actual", Width: 8, Align: lipgloss.Right},
	})
	lines.SetVisibleRows(max(len(ind.Lines), 1))
	rows := make([][]string, len(ind.Lines))
	var unpacked []string
	for i, l := range ind.Lines {
		crates := "-"
		if l.PackagingCapacity != nil {
			crates = fmt.Sprintf("%d", l.Crates)
		} else if l.RequestedQty.IsPositive() {
			unpacked = append(unpacked, l.SKU)
		}
		rows[i] = []string{
			l.SKU,
			l.RequestedQty.String(),
			crates,
			l.Loose.String(),
			l.Difference.String(),
			l.ActualQty.String(),
		}
	}
	lines.SetRows(rows)
	b.WriteString(lines.Render())

	if len(unpacked) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("No packaging configured: " + strings.Join(unpacked, ", ")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.UnsetWidth().Render("Esc:Back"))
	return b.String()
}

// Package sweeps provides console views over shortfall sweep runs.
package sweeps

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/tui/components"
	"github.com/indentrecon/indentrecon/internal/util"
)

// RunLister is the part of the sweep service the view reads from.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*models.SweepSummary, error)
}

// RunsView lists recent sweep runs and shows the outcomes of one.
type RunsView struct {
	service RunLister
	table   *components.Table
	runs    []*models.SweepSummary
	limit   int
	loading bool
	err     error
}

// NewRunsView creates a sweep run view.
func NewRunsView(service RunLister) *RunsView {
	columns := []components.Column{
		{Title: "Started", Width: 19},
		{Title: "Indents", Width: 7, Align: lipgloss.Right},
		{Title: "Created", Width: 7, Align: lipgloss.Right},
		{Title: "No Short", Width: 8, Align: lipgloss.Right},
		{Title: "Skipped", Width: 7, Align: lipgloss.Right},
		{Title: "Errors", Width: 6, Align: lipgloss.Right},
		{Title: "Took", Width: 8, Align: lipgloss.Right},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(15)
	table.Focus(true)

	return &RunsView{service: service, table: table, limit: 50}
}

// Load fetches the most recent runs.
func (v *RunsView) Load(ctx context.Context) error {
	if v.service == nil {
		return nil
	}
	v.loading = true
	v.err = nil

	runs, err := v.service.ListRuns(ctx, v.limit)
	v.loading = false
	if err != nil {
		v.err = err
		return err
	}
	v.SetRuns(runs)
	return nil
}

// SetRuns replaces the listed runs.
func (v *RunsView) SetRuns(runs []*models.SweepSummary) {
	v.runs = runs
	rows := make([][]string, len(runs))
	for i, r := range runs {
		took := "running"
		if !r.FinishedAt.IsZero() {
			took = r.Duration().Round(1e6).String()
		}
		rows[i] = []string{
			util.FormatDateTime(r.StartedAt),
			fmt.Sprintf("%d", r.Processed),
			fmt.Sprintf("%d", r.Created),
			fmt.Sprintf("%d", r.WithoutShortfall),
			fmt.Sprintf("%d", r.AlreadyAdjusted),
			fmt.Sprintf("%d", r.Errors),
			took,
		}
	}
	v.table.SetRows(rows)
}

// Prepend shows a just-finished run at the top and selects it.
func (v *RunsView) Prepend(run *models.SweepSummary) {
	v.SetRuns(append([]*models.SweepSummary{run}, v.runs...))
	v.table.GoToTop()
}

// SetVisibleRows sets how many table rows are drawn.
func (v *RunsView) SetVisibleRows(n int) {
	v.table.SetVisibleRows(n)
}

// MoveUp moves the selection up.
func (v *RunsView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *RunsView) MoveDown() {
	v.table.MoveDown()
}

// Selected returns the selected run.
func (v *RunsView) Selected() *models.SweepSummary {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.runs) {
		return v.runs[idx]
	}
	return nil
}

// Render renders the run list.
func (v *RunsView) Render(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	labelStyle := lipgloss.NewStyle().Faint(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))

	var b strings.Builder
	b.WriteString(titleStyle.Render("=== SHORTFALL SWEEPS ==="))
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
		b.WriteString(labelStyle.Render("No sweeps have run yet."))
		b.WriteString("\n")
	default:
		b.WriteString(v.table.Render())
	}

	b.WriteString("\n")
	if width < 80 {
		b.WriteString(labelStyle.Render("r:Run Enter:View"))
	} else {
		b.WriteString(labelStyle.Render("r:Run sweep  Up/Down:Select  Enter:Outcomes"))
	}
	return b.String()
}

// RenderDetail renders the per-indent outcomes of run.
func (v *RunsView) RenderDetail(run *models.SweepSummary) string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	labelStyle := lipgloss.NewStyle().Faint(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))

	if run == nil {
		return labelStyle.Render("No sweep selected")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("=== SWEEP " + run.RunID + " ==="))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf(
		"Processed %d  Created %d  With shortfall %d  No shortfall %d  Already adjusted %d  Errors %d",
		run.Processed, run.Created, run.WithShortfall, run.WithoutShortfall, run.AlreadyAdjusted, run.Errors,
	)))
	b.WriteString("\n\n")

	outcomes := components.NewTable([]components.Column{
		{Title: "Route", Width: 12},
		{Title: "Date", Width: 10},
		{Title: "Indent", Width: 14},
		{Title: "Outcome", Width: 16},
		{Title: "Lines", Width: 5, Align: lipgloss.Right},
		{Title: "Adjusted Indent", Width: 14},
	})
	outcomes.SetVisibleRows(max(len(run.Details), 1))
	rows := make([][]string, len(run.Details))
	var problems []string
	for i, o := range run.Details {
		rows[i] = []string{o.Route, o.Date, o.IndentID, o.Status.String(), fmt.Sprintf("%d", o.ShortfallLines), o.AdjustedIndentID}
		if o.Status == models.OutcomeError {
			problems = append(problems, o.IndentID+": "+o.Message)
		}
		for _, w := range o.Warnings {
			problems = append(problems, o.IndentID+": "+w)
		}
	}
	outcomes.SetRows(rows)
	b.WriteString(outcomes.Render())

	for _, p := range problems {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(p))
	}

	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Esc:Back"))
	return b.String()
}

package sweeps

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/indentrecon/indentrecon/internal/models"
)

type fakeRuns struct {
	runs  []*models.SweepSummary
	limit int
}

func (f *fakeRuns) ListRuns(_ context.Context, limit int) ([]*models.SweepSummary, error) {
	f.limit = limit
	return f.runs, nil
}

func sampleRun() *models.SweepSummary {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	s := &models.SweepSummary{RunID: "run-1", StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	s.Record(models.SweepOutcome{
		IndentID: "ind-1", Route: "R-NORTH", Date: "2026-03-14",
		Status: models.OutcomeCreated, HadShortfall: true, ShortfallLines: 2, AdjustedIndentID: "adj-1",
		Warnings: []string{"GHEE-1L has no packaging capacity"},
	})
	s.Record(models.SweepOutcome{
		IndentID: "ind-2", Route: "R-SOUTH", Date: "2026-03-14",
		Status: models.OutcomeError, Message: "reading demand: timeout",
	})
	return s
}

func TestRunsView_Empty(t *testing.T) {
	view := NewRunsView(nil)
	out := view.Render(120)
	if !strings.Contains(out, "SHORTFALL SWEEPS") {
		t.Error("expected title")
	}
	if !strings.Contains(out, "No sweeps have run yet") {
		t.Error("expected empty state")
	}
	if view.Selected() != nil {
		t.Error("expected nothing selected")
	}
}

func TestRunsView_LoadAndPrepend(t *testing.T) {
	lister := &fakeRuns{runs: []*models.SweepSummary{sampleRun()}}
	view := NewRunsView(lister)
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lister.limit != 50 {
		t.Errorf("limit = %d, want 50", lister.limit)
	}
	if !strings.Contains(view.Render(120), "1.5s") {
		t.Errorf("expected run duration in:\n%s", view.Render(120))
	}

	view.MoveDown()
	view.Prepend(&models.SweepSummary{RunID: "run-2", StartedAt: time.Now()})
	if got := view.Selected(); got == nil || got.RunID != "run-2" {
		t.Errorf("expected new run selected, got %+v", got)
	}
	if !strings.Contains(view.Render(120), "running") {
		t.Error("expected unfinished run marked running")
	}
}

func TestRunsView_RenderDetail(t *testing.T) {
	view := NewRunsView(nil)
	if !strings.Contains(view.RenderDetail(nil), "No sweep selected") {
		t.Error("expected placeholder")
	}

	out := view.RenderDetail(sampleRun())
	for _, want := range []string{
		"Processed 2",
		"Created 1",
		"Errors 1",
		"R-NORTH",
		"adj-1",
		"ind-2: reading demand: timeout",
		"ind-1: GHEE-1L has no packaging capacity",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in detail:\n%s", want, out)
		}
	}
}

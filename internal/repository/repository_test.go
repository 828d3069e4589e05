package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/testutil"
)

func setupRepoTest(t *testing.T) (*testutil.TestDB, context.Context) {
	t.Helper()
	return testutil.NewTestDB(t), context.Background()
}

func TestItemRepository_UpsertAndGet(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewItemRepository(db.DB.DB)

	item := testutil.FixtureKgItem()

	t.Run("Insert item with conversions", func(t *testing.T) {
		if err := repo.Upsert(ctx, nil, item); err != nil {
			t.Fatalf("failed to upsert item: %v", err)
		}

		got, err := repo.GetBySKU(ctx, nil, item.SKU)
		if err != nil {
			t.Fatalf("failed to get item: %v", err)
		}
		if got.StockUOM != "Kg" {
			t.Errorf("expected stock uom Kg, got %s", got.StockUOM)
		}
		if got.PackagingCapacity == nil || *got.PackagingCapacity != 12 {
			t.Errorf("expected capacity 12, got %v", got.PackagingCapacity)
		}
		f, ok := got.ConversionFactor("Crate")
		if !ok || !f.Equal(decimal.NewFromInt(12)) {
			t.Errorf("expected Crate factor 12, got %s (%v)", f, ok)
		}
	})

	t.Run("Upsert replaces conversions", func(t *testing.T) {
		item.Conversions = nil
		item.PackagingCapacity = nil
		if err := repo.Upsert(ctx, nil, item); err != nil {
			t.Fatalf("failed to upsert item: %v", err)
		}
		got, err := repo.GetBySKU(ctx, nil, item.SKU)
		if err != nil {
			t.Fatalf("failed to get item: %v", err)
		}
		if len(got.Conversions) != 0 {
			t.Errorf("expected no conversions, got %d", len(got.Conversions))
		}
		if got.HasPackaging() {
			t.Error("expected packaging to be cleared")
		}
	})

	t.Run("Unknown SKU is not found", func(t *testing.T) {
		_, err := repo.GetBySKU(ctx, nil, "NOPE")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestItemRepository_AllAndList(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewItemRepository(db.DB.DB)

	for _, item := range []*models.Item{testutil.FixtureItem(), testutil.FixtureLooseItem(), testutil.FixtureKgItem()} {
		if err := repo.Upsert(ctx, nil, item); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	all, err := repo.All(ctx, nil)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
	if all[0].SKU != "CURD-1K" || len(all[0].Conversions) != 1 {
		t.Errorf("expected CURD-1K first with one conversion, got %s with %d", all[0].SKU, len(all[0].Conversions))
	}

	page, err := repo.List(ctx, models.Pagination{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("failed to page items: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 1 {
		t.Errorf("unexpected page: total=%d pages=%d items=%d", page.Total, page.TotalPages, len(page.Items))
	}
}

func TestIndentRepository_CreateAndGet(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewIndentRepository(db.DB.DB)

	indent := testutil.FixtureIndent(func(i *models.Indent) {
		i.Lines = []models.IndentLine{
			testutil.FixtureIndentLine("MILK-500", decimal.NewFromInt(100), func(l *models.IndentLine) {
				l.PackagingCapacity = testutil.IntPtr(24)
				l.Crates = 4
				l.Loose = decimal.NewFromInt(4)
				l.Difference = decimal.NewFromInt(10)
				l.ActualQty = decimal.NewFromInt(90)
			}),
			testutil.FixtureIndentLine("GHEE-1L", testutil.Dec("2.5")),
		}
	})
	if err := repo.Create(ctx, nil, indent); err != nil {
		t.Fatalf("failed to create indent: %v", err)
	}

	got, err := repo.Get(ctx, nil, indent.ID)
	if err != nil {
		t.Fatalf("failed to get indent: %v", err)
	}
	if got.Status != models.IndentStatusUnprocessed {
		t.Errorf("expected UNPROCESSED, got %s", got.Status)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got.Lines))
	}
	first := got.Lines[0]
	if first.Idx != 1 || first.Crates != 4 || !first.ActualQty.Equal(decimal.NewFromInt(90)) {
		t.Errorf("unexpected first line: %+v", first)
	}
	if !got.Lines[1].RequestedQty.Equal(testutil.Dec("2.5")) {
		t.Errorf("expected 2.5, got %s", got.Lines[1].RequestedQty)
	}
	if got.Lines[1].PackagingCapacity != nil {
		t.Error("expected loose line to keep nil capacity")
	}

	if _, err := repo.Get(ctx, nil, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndentRepository_Claim(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewIndentRepository(db.DB.DB)

	indent := testutil.FixtureIndent()
	if err := repo.Create(ctx, nil, indent); err != nil {
		t.Fatalf("setup: %v", err)
	}
	now := time.Now().UTC()

	t.Run("First claim wins", func(t *testing.T) {
		ok, err := repo.Claim(ctx, nil, indent.ID, models.IndentStatusProcessed, now)
		if err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if !ok {
			t.Fatal("expected first claim to succeed")
		}
	})

	t.Run("Second claim loses", func(t *testing.T) {
		ok, err := repo.Claim(ctx, nil, indent.ID, models.IndentStatusProcessedNoAction, now)
		if err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if ok {
			t.Error("expected second claim to be rejected")
		}
		got, _ := repo.Get(ctx, nil, indent.ID)
		if got.Status != models.IndentStatusProcessed || got.ProcessedAt == nil {
			t.Errorf("expected PROCESSED with timestamp, got %s %v", got.Status, got.ProcessedAt)
		}
	})

	t.Run("Non-terminal status rejected", func(t *testing.T) {
		if _, err := repo.Claim(ctx, nil, indent.ID, models.IndentStatusUnprocessed, now); err == nil {
			t.Error("expected error for non-terminal status")
		}
	})
}

func TestIndentRepository_OneAdjustedPerSource(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewIndentRepository(db.DB.DB)

	source := testutil.FixtureIndent()
	if err := repo.Create(ctx, nil, source); err != nil {
		t.Fatalf("setup: %v", err)
	}

	adjusted := testutil.FixtureIndent(func(i *models.Indent) {
		i.IsAdjusted = true
		i.SourceIndentID = &source.ID
	})
	if err := repo.Create(ctx, nil, adjusted); err != nil {
		t.Fatalf("failed to create adjusted indent: %v", err)
	}

	dup := testutil.FixtureIndent(func(i *models.Indent) {
		i.IsAdjusted = true
		i.SourceIndentID = &source.ID
	})
	if err := repo.Create(ctx, nil, dup); err == nil {
		t.Error("expected unique violation for a second adjusted indent")
	}

	got, err := repo.GetAdjustedFor(ctx, nil, source.ID)
	if err != nil {
		t.Fatalf("failed to get adjusted indent: %v", err)
	}
	if got.ID != adjusted.ID {
		t.Errorf("expected %s, got %s", adjusted.ID, got.ID)
	}
}

func TestIndentRepository_ListAndCounts(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewIndentRepository(db.DB.DB)

	older := testutil.FixtureIndent(func(i *models.Indent) { i.CreatedAt = time.Now().UTC().Add(-time.Hour) })
	newer := testutil.FixtureIndent(func(i *models.Indent) { i.Route = "R-SOUTH" })
	done := testutil.FixtureIndent(func(i *models.Indent) { i.Status = models.IndentStatusProcessedNoAction })
	adj := testutil.FixtureIndent(func(i *models.Indent) {
		i.IsAdjusted = true
		i.SourceIndentID = &done.ID
	})
	for _, ind := range []*models.Indent{older, newer, done, adj} {
		if err := repo.Create(ctx, nil, ind); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	unprocessed, err := repo.ListUnprocessed(ctx)
	if err != nil {
		t.Fatalf("failed to list unprocessed: %v", err)
	}
	if len(unprocessed) != 2 || unprocessed[0].ID != older.ID {
		t.Errorf("expected older indent first among 2, got %d", len(unprocessed))
	}

	list, err := repo.List(ctx, models.IndentFilter{Route: "R-NORTH"}, models.DefaultPagination())
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("expected 2 source indents on R-NORTH, got %d", list.Total)
	}

	withAdj, err := repo.List(ctx, models.IndentFilter{IncludeAdjusted: true}, models.DefaultPagination())
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if withAdj.Total != 4 {
		t.Errorf("expected 4 indents including adjusted, got %d", withAdj.Total)
	}

	counts, err := repo.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	want := models.IndentStatusCounts{Unprocessed: 2, ProcessedNoAction: 1, Adjusted: 1}
	if *counts != want {
		t.Errorf("expected %+v, got %+v", want, *counts)
	}
}

func TestIndentRepository_Lines(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewIndentRepository(db.DB.DB)

	indent := testutil.FixtureIndent(func(i *models.Indent) {
		i.Lines = []models.IndentLine{testutil.FixtureIndentLine("MILK-500", decimal.NewFromInt(5))}
	})
	if err := repo.Create(ctx, nil, indent); err != nil {
		t.Fatalf("setup: %v", err)
	}

	line := testutil.FixtureIndentLine("CURD-1K", decimal.NewFromInt(7), func(l *models.IndentLine) {
		l.IndentID = indent.ID
	})
	if err := repo.AddLine(ctx, nil, &line); err != nil {
		t.Fatalf("failed to add line: %v", err)
	}
	if line.Idx != 2 {
		t.Errorf("expected idx 2, got %d", line.Idx)
	}

	line.Difference = decimal.NewFromInt(2)
	line.ActualQty = decimal.NewFromInt(5)
	if err := repo.UpdateLine(ctx, nil, &line); err != nil {
		t.Fatalf("failed to update line: %v", err)
	}
	got, err := repo.GetLine(ctx, nil, line.ID)
	if err != nil {
		t.Fatalf("failed to get line: %v", err)
	}
	if !got.ActualQty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected actual 5, got %s", got.ActualQty)
	}

	if err := repo.DeleteLine(ctx, nil, line.ID); err != nil {
		t.Fatalf("failed to delete line: %v", err)
	}
	if err := repo.DeleteLine(ctx, nil, line.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	db.AssertRowCount(t, "indent_lines", 1)
}

func TestDemandRepository(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewDemandRepository(db.DB.DB)
	date := testutil.FixtureDate

	if err := repo.Set(ctx, nil, &models.RealizedDemand{Route: "R-NORTH", Date: date, SKU: "MILK-500", Quantity: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("failed to set demand: %v", err)
	}
	if err := repo.Add(ctx, nil, "R-NORTH", date, "MILK-500", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("failed to add demand: %v", err)
	}
	if err := repo.Add(ctx, nil, "R-NORTH", date, "CURD-1K", testutil.Dec("1.5")); err != nil {
		t.Fatalf("failed to add demand: %v", err)
	}

	got, err := repo.ForGroup(ctx, "R-NORTH", date)
	if err != nil {
		t.Fatalf("failed to read demand: %v", err)
	}
	if !got["MILK-500"].Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected 120, got %s", got["MILK-500"])
	}
	if !got["CURD-1K"].Equal(testutil.Dec("1.5")) {
		t.Errorf("expected 1.5, got %s", got["CURD-1K"])
	}

	other, err := repo.ForGroup(ctx, "R-SOUTH", date)
	if err != nil {
		t.Fatalf("failed to read demand: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no demand for R-SOUTH, got %v", other)
	}
}

func TestDemandRepository_OrderLines(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewDemandRepository(db.DB.DB)

	confirmed := testutil.FixtureOrderLine()
	draft := testutil.FixtureOrderLine(func(o *models.OrderLine) { o.Status = models.OrderStatusDraft })
	for _, o := range []*models.OrderLine{confirmed, draft} {
		if err := repo.CreateOrderLine(ctx, nil, o); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	pending, err := repo.PendingOrderLines(ctx, nil)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != confirmed.ID {
		t.Fatalf("expected only the confirmed line, got %d", len(pending))
	}

	if err := repo.MarkProcessed(ctx, nil, []string{confirmed.ID}); err != nil {
		t.Fatalf("failed to mark processed: %v", err)
	}
	pending, err = repo.PendingOrderLines(ctx, nil)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending lines, got %d", len(pending))
	}
}

func TestDeliveryRepository_IssueNotes(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewDeliveryRepository(db.DB.DB)

	dn := testutil.FixtureDeliveryNote()
	if err := repo.CreateDeliveryNote(ctx, nil, dn); err != nil {
		t.Fatalf("failed to create delivery note: %v", err)
	}
	gotDN, err := repo.GetDeliveryNote(ctx, nil, dn.ID)
	if err != nil {
		t.Fatalf("failed to get delivery note: %v", err)
	}
	if it, ok := gotDN.Item("MILK-500"); !ok || !it.StockQty.Equal(decimal.NewFromInt(48)) {
		t.Errorf("expected MILK-500 with 48 stock qty, got %+v", it)
	}

	note := testutil.FixtureIssueNote(dn.ID)
	if err := repo.CreateIssueNote(ctx, nil, note); err != nil {
		t.Fatalf("failed to create issue note: %v", err)
	}

	owned := testutil.FixtureIssueLine(note.ID)
	free := testutil.FixtureIssueLine(note.ID, func(l *models.DeliveryIssueLine) {
		l.ItemCode = "GHEE-1L"
		l.BelongsToDelivery = false
		l.DeliveredQty = decimal.Zero
		l.ExcessQty = decimal.NewFromInt(2)
	})
	for _, l := range []*models.DeliveryIssueLine{owned, free} {
		if err := repo.AddIssueLine(ctx, nil, l); err != nil {
			t.Fatalf("failed to add issue line: %v", err)
		}
	}

	owned.MissingQty = decimal.NewFromInt(3)
	if err := repo.UpdateIssueLine(ctx, nil, owned); err != nil {
		t.Fatalf("failed to update issue line: %v", err)
	}

	got, err := repo.GetIssueNote(ctx, nil, note.ID)
	if err != nil {
		t.Fatalf("failed to get issue note: %v", err)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got.Lines))
	}
	if !got.Lines[0].BelongsToDelivery || got.Lines[1].BelongsToDelivery {
		t.Error("ownership flags not preserved")
	}
	if !got.Lines[0].MissingQty.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected missing 3, got %s", got.Lines[0].MissingQty)
	}

	n, err := repo.DeleteOwnedLines(ctx, nil, note.ID)
	if err != nil {
		t.Fatalf("failed to delete owned lines: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 owned line removed, got %d", n)
	}
	db.AssertRowCount(t, "delivery_issue_lines", 1)

	if err := repo.MarkSubmitted(ctx, nil, note.ID, time.Now().UTC()); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	if err := repo.MarkSubmitted(ctx, nil, note.ID, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected resubmission to fail with ErrNotFound, got %v", err)
	}
}

func TestDeliveryRepository_StockMovements(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewDeliveryRepository(db.DB.DB)

	dn := testutil.FixtureDeliveryNote()
	note := testutil.FixtureIssueNote(dn.ID)
	if err := repo.CreateDeliveryNote(ctx, nil, dn); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := repo.CreateIssueNote(ctx, nil, note); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for _, m := range []*models.StockMovement{
		{ID: "m1", IssueNoteID: note.ID, ItemCode: "MILK-500", Quantity: decimal.NewFromInt(2), Target: models.StockTargetMissing},
		{ID: "m2", IssueNoteID: note.ID, ItemCode: "MILK-500", Quantity: decimal.NewFromInt(1), Target: models.StockTargetDamaged},
	} {
		if err := repo.CreateStockMovement(ctx, nil, m); err != nil {
			t.Fatalf("failed to create movement: %v", err)
		}
	}

	got, err := repo.ListStockMovements(ctx, note.ID)
	if err != nil {
		t.Fatalf("failed to list movements: %v", err)
	}
	if len(got) != 2 || got[0].Target != models.StockTargetDamaged {
		t.Errorf("expected DAMAGED then MISSING, got %d movements", len(got))
	}
}

func TestSweepRepository(t *testing.T) {
	db, ctx := setupRepoTest(t)
	repo := NewSweepRepository(db.DB.DB)

	started := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	if err := repo.CreateRun(ctx, nil, "run-1", started); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	summary := &models.SweepSummary{RunID: "run-1", StartedAt: started, FinishedAt: started.Add(2 * time.Second)}
	summary.Record(models.SweepOutcome{
		IndentID: "a", Route: "R-NORTH", Date: "2026-03-14",
		Status: models.OutcomeCreated, AdjustedIndentID: "adj-a", ShortfallLines: 1, HadShortfall: true,
		Warnings: []string{"GHEE-1L: no packaging capacity", "CURD-1K: no packaging capacity"},
	})
	summary.Record(models.SweepOutcome{IndentID: "b", Status: models.OutcomeError, Message: "boom"})

	if err := repo.FinishRun(ctx, nil, summary); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Processed != 2 || got.Created != 1 || got.Errors != 1 || got.WithShortfall != 1 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if got.Duration() != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", got.Duration())
	}
	if len(got.Details) != 2 || len(got.Details[0].Warnings) != 2 {
		t.Fatalf("expected outcomes with warnings, got %+v", got.Details)
	}
	if got.Details[1].Message != "boom" {
		t.Errorf("expected error message, got %q", got.Details[1].Message)
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	if _, err := repo.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

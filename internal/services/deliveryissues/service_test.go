package deliveryissues

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indentrecon/indentrecon/internal/metrics"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	tu "github.com/indentrecon/indentrecon/internal/testutil"
	"github.com/indentrecon/indentrecon/internal/util"
)

type fixture struct {
	svc  *Service
	db   *tu.TestDB
	reg  *metrics.Registry
	note *models.DeliveryIssueNote
}

// owned returns the note's only delivery-owned line.
func (f *fixture) owned(t *testing.T) models.DeliveryIssueLine {
	t.Helper()
	note, err := f.svc.GetNote(context.Background(), f.note.ID)
	require.NoError(t, err)
	for _, l := range note.Lines {
		if l.BelongsToDelivery {
			return l
		}
	}
	t.Fatal("note has no owned line")
	return models.DeliveryIssueLine{}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := tu.NewTestDB(t)

	items := repository.NewItemRepository(db.DB.DB)
	for _, it := range []*models.Item{tu.FixtureItem(), tu.FixtureKgItem()} {
		require.NoError(t, items.Upsert(ctx, nil, it))
	}
	delivery := tu.FixtureDeliveryNote()
	require.NoError(t, repository.NewDeliveryRepository(db.DB.DB).CreateDeliveryNote(ctx, nil, delivery))

	reg := metrics.NewRegistry()
	svc := NewService(db.DB, catalog.NewService(db.DB), reg, util.NewFixedClock(tu.FixtureDate))
	note, err := svc.Open(ctx, delivery.ID)
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, reg: reg, note: note}
}

func TestOpen_GeneratesOwnedLines(t *testing.T) {
	f := setup(t)

	assert.Equal(t, models.IssueNoteStatusDraft, f.note.Status)
	require.Len(t, f.note.Lines, 1)
	line := f.note.Lines[0]
	assert.True(t, line.BelongsToDelivery)
	assert.Equal(t, "MILK-500", line.ItemCode)
	assert.True(t, line.DeliveredQty.Equal(tu.Dec("48")))
	assert.True(t, line.MissingQty.IsZero())
	assert.True(t, line.DamagedQty.IsZero())
	assert.True(t, line.ExcessQty.IsZero())

	_, err := f.svc.Open(context.Background(), "no-such-delivery")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetCorrective_CapacityRule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lineID := f.owned(t).ID

	line, err := f.svc.SetCorrective(ctx, lineID, reconcile.DeliveryFieldMissingQty, tu.Dec("10"))
	require.NoError(t, err)
	assert.True(t, line.MissingQty.Equal(tu.Dec("10")))

	line, err = f.svc.SetCorrective(ctx, lineID, reconcile.DeliveryFieldDamagedQty, tu.Dec("40"))
	assert.ErrorIs(t, err, reconcile.ErrQuantityExceeded)
	require.NotNil(t, line)
	assert.True(t, line.DamagedQty.IsZero(), "damaged reverted to prior value")

	stored := f.owned(t)
	assert.True(t, stored.MissingQty.Equal(tu.Dec("10")))
	assert.True(t, stored.DamagedQty.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.Violations.WithLabelValues("QuantityExceeded")))
}

func TestSetCorrective_OwnershipRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	line, err := f.svc.SetCorrective(ctx, f.owned(t).ID, reconcile.DeliveryFieldExcessQty, tu.Dec("5"))
	assert.ErrorIs(t, err, reconcile.ErrOwnershipViolation)
	require.NotNil(t, line)
	assert.True(t, line.ExcessQty.IsZero())

	free, err := f.svc.AddLine(ctx, f.note.ID, AddLineInput{ItemCode: "CURD-1K", UOM: "Crate", Qty: tu.Dec("1"), ExcessQty: tu.Dec("12")})
	require.NoError(t, err)
	assert.False(t, free.BelongsToDelivery)
	assert.Equal(t, "Kg", free.StockUOM)
	assert.True(t, free.StockQty.Equal(tu.Dec("12")))
	assert.True(t, free.DeliveredQty.IsZero())

	line, err = f.svc.SetCorrective(ctx, free.ID, reconcile.DeliveryFieldMissingQty, tu.Dec("3"))
	assert.ErrorIs(t, err, reconcile.ErrOwnershipViolation)
	assert.True(t, line.MissingQty.IsZero())

	_, err = f.svc.SetCorrective(ctx, free.ID, reconcile.DeliveryFieldQty, tu.Dec("3"))
	assert.ErrorIs(t, err, reconcile.ErrInvalidInput)

	_, err = f.svc.SetItemCode(ctx, f.owned(t).ID, "CURD-1K")
	assert.ErrorIs(t, err, reconcile.ErrProtectedRecord)
}

func TestUOMAndFactorEdits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	free, err := f.svc.AddLine(ctx, f.note.ID, AddLineInput{ItemCode: "MILK-500", Qty: tu.Dec("2")})
	require.NoError(t, err)
	assert.Equal(t, "Nos", free.UOM)
	assert.True(t, free.StockQty.Equal(tu.Dec("2")))

	line, err := f.svc.SetConversionFactor(ctx, free.ID, tu.Dec("6"))
	require.NoError(t, err)
	assert.True(t, line.StockQty.Equal(tu.Dec("12")))

	line, err = f.svc.SetQty(ctx, free.ID, tu.Dec("3"))
	require.NoError(t, err)
	assert.True(t, line.StockQty.Equal(tu.Dec("18")))

	_, err = f.svc.SetUOM(ctx, free.ID, "Pallet")
	assert.ErrorIs(t, err, reconcile.ErrMissingConfiguration)
}

func TestDeleteLine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.DeleteLine(ctx, f.owned(t).ID)
	assert.ErrorIs(t, err, reconcile.ErrProtectedRecord)

	free, err := f.svc.AddLine(ctx, f.note.ID, AddLineInput{ItemCode: "CURD-1K", Qty: tu.Dec("1")})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteLine(ctx, free.ID))

	note, err := f.svc.GetNote(ctx, f.note.ID)
	require.NoError(t, err)
	assert.Len(t, note.Lines, 1)
}

func TestRegenerate_ResetsOwnedLinesOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetCorrective(ctx, f.owned(t).ID, reconcile.DeliveryFieldMissingQty, tu.Dec("7"))
	require.NoError(t, err)
	free, err := f.svc.AddLine(ctx, f.note.ID, AddLineInput{ItemCode: "CURD-1K", Qty: tu.Dec("2"), ExcessQty: tu.Dec("2")})
	require.NoError(t, err)

	note, err := f.svc.Regenerate(ctx, f.note.ID)
	require.NoError(t, err)
	require.Len(t, note.Lines, 2)

	var sawFree bool
	for _, l := range note.Lines {
		if l.BelongsToDelivery {
			assert.True(t, l.MissingQty.IsZero())
			continue
		}
		sawFree = true
		assert.Equal(t, free.ID, l.ID)
		assert.True(t, l.ExcessQty.Equal(tu.Dec("2")))
	}
	assert.True(t, sawFree)
}

func TestSubmit_WritesStockMovements(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lineID := f.owned(t).ID

	_, err := f.svc.SetCorrective(ctx, lineID, reconcile.DeliveryFieldMissingQty, tu.Dec("5"))
	require.NoError(t, err)
	_, err = f.svc.SetCorrective(ctx, lineID, reconcile.DeliveryFieldDamagedQty, tu.Dec("3"))
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, f.note.ID)
	require.NoError(t, err)
	require.Len(t, res.Movements, 2)

	moves, err := f.svc.StockMovements(ctx, f.note.ID)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, models.StockTargetDamaged, moves[0].Target)
	assert.True(t, moves[0].Quantity.Equal(tu.Dec("3")))
	assert.Equal(t, models.StockTargetMissing, moves[1].Target)
	assert.True(t, moves[1].Quantity.Equal(tu.Dec("5")))

	note, err := f.svc.GetNote(ctx, f.note.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueNoteStatusSubmitted, note.Status)
	assert.NotNil(t, note.SubmittedAt)

	_, err = f.svc.Submit(ctx, f.note.ID)
	assert.ErrorIs(t, err, reconcile.ErrProtectedRecord)
	_, err = f.svc.SetCorrective(ctx, lineID, reconcile.DeliveryFieldMissingQty, tu.Dec("1"))
	assert.ErrorIs(t, err, reconcile.ErrProtectedRecord)
}

func TestSubmit_RejectsInvalidLines(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.db.ExecSQL(t, "UPDATE delivery_issue_lines SET excess_qty = '4' WHERE id = ?", f.owned(t).ID)

	_, err := f.svc.Submit(ctx, f.note.ID)
	assert.ErrorIs(t, err, reconcile.ErrOwnershipViolation)
	f.db.AssertRowCount(t, "stock_movements", 0)

	note, err := f.svc.GetNote(ctx, f.note.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueNoteStatusDraft, note.Status)
}

func TestValidateLine_IsPure(t *testing.T) {
	f := setup(t)
	line := tu.FixtureIssueLine(f.note.ID, func(l *models.DeliveryIssueLine) {
		l.MissingQty = tu.Dec("50")
	})

	out, err := f.svc.ValidateLine(*line, reconcile.Change{Field: reconcile.DeliveryFieldMissingQty})
	assert.ErrorIs(t, err, reconcile.ErrQuantityExceeded)
	assert.True(t, out.MissingQty.IsZero())

	// The stored line is untouched.
	assert.True(t, f.owned(t).MissingQty.IsZero())
}

func TestSetField_Dispatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lineID := f.owned(t).ID

	line, err := f.svc.SetField(ctx, lineID, reconcile.DeliveryFieldMissingQty, "6")
	require.NoError(t, err)
	assert.True(t, line.MissingQty.Equal(tu.Dec("6")))

	line, err = f.svc.SetField(ctx, lineID, reconcile.DeliveryFieldExcessQty, "2")
	assert.ErrorIs(t, err, reconcile.ErrOwnershipViolation)
	require.NotNil(t, line)
	assert.True(t, line.ExcessQty.IsZero())

	_, err = f.svc.SetField(ctx, lineID, reconcile.DeliveryFieldDamagedQty, "a few")
	assert.ErrorIs(t, err, reconcile.ErrInvalidInput)

	free, err := f.svc.AddLine(ctx, f.note.ID, AddLineInput{ItemCode: "MILK-500", Qty: tu.Dec("2")})
	require.NoError(t, err)
	line, err = f.svc.SetField(ctx, free.ID, reconcile.DeliveryFieldItemCode, "CURD-1K")
	require.NoError(t, err)
	assert.Equal(t, "Kg", line.UOM)

	line, err = f.svc.SetField(ctx, free.ID, reconcile.DeliveryFieldUOM, "Crate")
	require.NoError(t, err)
	assert.True(t, line.StockQty.Equal(tu.Dec("24")))

	line, err = f.svc.SetField(ctx, free.ID, reconcile.DeliveryFieldQty, "3")
	require.NoError(t, err)
	assert.True(t, line.StockQty.Equal(tu.Dec("36")))

	line, err = f.svc.SetField(ctx, free.ID, reconcile.DeliveryFieldConversionFactor, "10")
	require.NoError(t, err)
	assert.True(t, line.StockQty.Equal(tu.Dec("30")))
}

func TestListDeliveries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	south := tu.FixtureDeliveryNote(func(n *models.DeliveryNote) { n.Route = "R-SOUTH" })
	require.NoError(t, repository.NewDeliveryRepository(f.db.DB.DB).CreateDeliveryNote(ctx, nil, south))

	all, err := f.svc.ListDeliveries(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := f.svc.ListDeliveries(ctx, "R-SOUTH", 10)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, south.ID, only[0].ID)
	assert.Empty(t, only[0].Items)
}

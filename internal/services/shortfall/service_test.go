package shortfall

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indentrecon/indentrecon/internal/config"
	"github.com/indentrecon/indentrecon/internal/events"
	"github.com/indentrecon/indentrecon/internal/metrics"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	tu "github.com/indentrecon/indentrecon/internal/testutil"
	"github.com/indentrecon/indentrecon/internal/util"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AdjustedIndentCreated
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.AdjustedIndentCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingDemand struct {
	DemandReader
	route string
}

func (f failingDemand) ForGroup(ctx context.Context, route string, date time.Time) (map[string]decimal.Decimal, error) {
	if route == f.route {
		return nil, errors.New("demand store unavailable")
	}
	return f.DemandReader.ForGroup(ctx, route, date)
}

type sweepFixture struct {
	db      *tu.TestDB
	svc     *Service
	indents *repository.IndentRepository
	demand  *repository.DemandRepository
	pub     *recordingPublisher
	reg     *metrics.Registry
	early   *models.Indent
	late    *models.Indent
}

// setupSweep seeds one R-NORTH group: an early indent with MILK 100 (90
// after a difference of 10) and CURD 30, and a later one with MILK 48.
func setupSweep(t *testing.T) *sweepFixture {
	t.Helper()
	return setupSweepOn(t, tu.NewTestDB(t))
}

func setupSweepOn(t *testing.T, db *tu.TestDB) *sweepFixture {
	t.Helper()
	ctx := context.Background()

	items := repository.NewItemRepository(db.DB.DB)
	for _, it := range []*models.Item{tu.FixtureItem(), tu.FixtureKgItem(), tu.FixtureLooseItem()} {
		require.NoError(t, items.Upsert(ctx, nil, it))
	}

	f := &sweepFixture{
		db:      db,
		indents: repository.NewIndentRepository(db.DB.DB),
		demand:  repository.NewDemandRepository(db.DB.DB),
		pub:     &recordingPublisher{},
		reg:     metrics.NewRegistry(),
	}

	base := time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC)
	f.early = tu.FixtureIndent(func(i *models.Indent) {
		i.CreatedAt = base
		i.Lines = []models.IndentLine{
			tu.FixtureIndentLine("MILK-500", tu.Dec("100"), func(l *models.IndentLine) {
				l.Difference = tu.Dec("10")
				l.ActualQty = tu.Dec("90")
			}),
			tu.FixtureIndentLine("CURD-1K", tu.Dec("30"), func(l *models.IndentLine) { l.UOM = "Kg" }),
		}
	})
	f.late = tu.FixtureIndent(func(i *models.Indent) {
		i.Facility = "Outlet 12"
		i.CreatedAt = base.Add(time.Minute)
		i.Lines = []models.IndentLine{tu.FixtureIndentLine("MILK-500", tu.Dec("48"))}
	})
	require.NoError(t, f.indents.Create(ctx, nil, f.early))
	require.NoError(t, f.indents.Create(ctx, nil, f.late))

	setDemand(t, f.demand, "R-NORTH", "MILK-500", "170")
	setDemand(t, f.demand, "R-NORTH", "CURD-1K", "36")

	f.svc = NewService(db.DB, catalog.NewService(db.DB), config.SweepConfig{Workers: 4}).
		WithPublisher(f.pub).
		WithMetrics(f.reg).
		WithClock(util.NewFixedClock(time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)))
	return f
}

func setDemand(t *testing.T, repo *repository.DemandRepository, route, sku, qty string) {
	t.Helper()
	require.NoError(t, repo.Set(context.Background(), nil, &models.RealizedDemand{
		Route:    route,
		Date:     tu.FixtureDate,
		SKU:      sku,
		Quantity: tu.Dec(qty),
	}))
}

func outcomeFor(t *testing.T, s *models.SweepSummary, indentID string) models.SweepOutcome {
	t.Helper()
	for _, o := range s.Details {
		if o.IndentID == indentID {
			return o
		}
	}
	t.Fatalf("no outcome for indent %s", indentID)
	return models.SweepOutcome{}
}

func TestRunSweep_AllocatesShortfallToEarliestIndent(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()

	summary, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.WithShortfall)
	assert.Equal(t, 1, summary.WithoutShortfall)
	assert.Equal(t, 0, summary.Errors)

	early := outcomeFor(t, summary, f.early.ID)
	assert.Equal(t, models.OutcomeCreated, early.Status)
	assert.Equal(t, 2, early.ShortfallLines)
	assert.Equal(t, models.OutcomeNoShortfall, outcomeFor(t, summary, f.late.ID).Status)

	adjusted, err := f.indents.GetAdjustedFor(ctx, nil, f.early.ID)
	require.NoError(t, err)
	assert.True(t, adjusted.IsAdjusted)
	assert.Equal(t, early.AdjustedIndentID, adjusted.ID)
	require.Len(t, adjusted.Lines, 2)

	curd, milk := adjusted.Lines[0], adjusted.Lines[1]
	assert.Equal(t, "CURD-1K", curd.SKU)
	assert.True(t, curd.RequestedQty.Equal(tu.Dec("6")), "curd shortfall = %s", curd.RequestedQty)
	assert.Equal(t, int64(0), curd.Crates)
	assert.Equal(t, "MILK-500", milk.SKU)
	assert.True(t, milk.RequestedQty.Equal(tu.Dec("32")), "milk shortfall = %s", milk.RequestedQty)
	assert.Equal(t, int64(1), milk.Crates)
	assert.True(t, milk.Loose.Equal(tu.Dec("8")))

	src, err := f.indents.Get(ctx, nil, f.early.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IndentStatusProcessed, src.Status)
	late, err := f.indents.Get(ctx, nil, f.late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IndentStatusProcessedNoAction, late.Status)

	_, err = f.indents.GetAdjustedFor(ctx, nil, f.late.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunSweep_IsIdempotent(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()

	_, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	second, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Created)

	f.db.AssertRowCount(t, "indents WHERE is_adjusted = 1", 1)
}

func TestRunSweep_ConcurrentRunsCreateOneAdjustedIndent(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	summaries := make([]*models.SweepSummary, 4)
	errs := make([]error, 4)
	for i := range summaries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summaries[i], errs[i] = f.svc.RunSweep(ctx)
		}()
	}
	wg.Wait()

	created := 0
	for i, s := range summaries {
		require.NoError(t, errs[i])
		assert.Equal(t, 0, s.Errors)
		created += s.Created
	}
	assert.Equal(t, 1, created)
	f.db.AssertRowCount(t, "indents WHERE is_adjusted = 1", 1)
	assert.Len(t, f.pub.events, 1)
}

func TestRunSweep_SeparateServicesShareOneClaim(t *testing.T) {
	f := setupSweepOn(t, tu.NewTestDBWithFile(t))
	ctx := context.Background()

	other := NewService(f.db.DB, catalog.NewService(f.db.DB), config.SweepConfig{Workers: 2}).
		WithPublisher(f.pub)

	var wg sync.WaitGroup
	var first, second *models.SweepSummary
	var err1, err2 error
	wg.Add(2)
	go func() {
		defer wg.Done()
		first, err1 = f.svc.RunSweep(ctx)
	}()
	go func() {
		defer wg.Done()
		second, err2 = other.RunSweep(ctx)
	}()
	wg.Wait()

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, first.Created+second.Created)
	assert.Equal(t, 0, first.Errors+second.Errors)
	f.db.AssertRowCount(t, "indents WHERE is_adjusted = 1", 1)
}

func TestRunSweep_DemandFailureIsolatedToGroup(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()

	south := tu.FixtureIndent(func(i *models.Indent) {
		i.Route = "R-SOUTH"
		i.Lines = []models.IndentLine{tu.FixtureIndentLine("MILK-500", tu.Dec("60"))}
	})
	require.NoError(t, f.indents.Create(ctx, nil, south))
	f.svc.WithDemandReader(failingDemand{DemandReader: f.demand, route: "R-SOUTH"})

	summary, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Created)

	o := outcomeFor(t, summary, south.ID)
	assert.Equal(t, models.OutcomeError, o.Status)
	assert.Contains(t, o.Message, "demand store unavailable")

	got, err := f.indents.Get(ctx, nil, south.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IndentStatusUnprocessed, got.Status)
}

func TestRunSweep_NoDemandMeansNoShortfall(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()
	f.db.Truncate(t, "realized_demand")

	summary, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 2, summary.WithoutShortfall)
	f.db.AssertRowCount(t, "indents WHERE is_adjusted = 1", 0)
}

func TestRunSweep_MissingPackagingIsWarning(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()
	f.db.Truncate(t, "realized_demand")

	ghee := tu.FixtureIndent(func(i *models.Indent) {
		i.Route = "R-EAST"
		i.Lines = []models.IndentLine{tu.FixtureIndentLine("GHEE-1L", tu.Dec("4"))}
	})
	require.NoError(t, f.indents.Create(ctx, nil, ghee))
	require.NoError(t, f.demand.Set(ctx, nil, &models.RealizedDemand{
		Route: "R-EAST", Date: tu.FixtureDate, SKU: "GHEE-1L", Quantity: tu.Dec("10"),
	}))

	summary, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	o := outcomeFor(t, summary, ghee.ID)
	assert.Equal(t, models.OutcomeCreated, o.Status)
	require.Len(t, o.Warnings, 1)
	assert.Contains(t, o.Warnings[0], "GHEE-1L")

	adjusted, err := f.indents.GetAdjustedFor(ctx, nil, ghee.ID)
	require.NoError(t, err)
	require.Len(t, adjusted.Lines, 1)
	assert.Nil(t, adjusted.Lines[0].PackagingCapacity)
	assert.True(t, adjusted.Lines[0].RequestedQty.Equal(tu.Dec("6")))
	assert.True(t, adjusted.Lines[0].Loose.Equal(tu.Dec("6")))
}

func TestRunSweep_RecordsRunAndMetrics(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()

	summary, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	run, err := f.svc.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.Processed, run.Processed)
	assert.Equal(t, summary.Created, run.Created)
	assert.Len(t, run.Details, 2)

	runs, err := f.svc.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.SweepsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.AdjustedCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.SweepOutcomes.WithLabelValues("Created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.EventsPublished))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.reg.UnprocessedGauge))

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, summary.RunID, ev.RunID)
	assert.Equal(t, f.early.ID, ev.SourceIndentID)
}

func TestRunSweep_PublishFailureDoesNotUndoIndent(t *testing.T) {
	f := setupSweep(t)
	f.pub.err = errors.New("broker down")

	summary, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.EventsFailed))
	f.db.AssertRowCount(t, "indents WHERE is_adjusted = 1", 1)
}

func TestProcessIndent_AlreadyClaimed(t *testing.T) {
	f := setupSweep(t)
	ctx := context.Background()

	claimed, err := f.indents.Claim(ctx, nil, f.early.ID, models.IndentStatusProcessedNoAction, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	cat, err := f.svc.catalog.Snapshot(ctx, nil)
	require.NoError(t, err)
	converter := reconcile.NewConverter(cat)
	lines := []reconcile.ShortfallLine{{SKU: "MILK-500", UOM: "Nos", Quantity: tu.Dec("5")}}

	o := f.svc.processIndent(ctx, "run-x", f.early, lines, converter)
	assert.Equal(t, models.OutcomeAlreadyProcessed, o.Status)
	assert.False(t, o.HadShortfall)
	f.db.AssertRowCount(t, "indents WHERE is_adjusted = 1", 0)

	o = f.svc.processIndent(ctx, "run-x", f.early, nil, converter)
	assert.Equal(t, models.OutcomeAlreadyProcessed, o.Status)
}

func TestKeyLock(t *testing.T) {
	l := newKeyLock()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("indent-1")
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.size())
}

// Package shortfall runs the shortfall sweep: it compares unprocessed source
// indents against realized demand and creates at most one adjusted indent per
// source indent for the quantity that was under-indented.
package shortfall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/indentrecon/indentrecon/internal/config"
	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/events"
	"github.com/indentrecon/indentrecon/internal/metrics"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/util"
)

// DemandReader reads realized demand for one (route, date) group.
type DemandReader interface {
	ForGroup(ctx context.Context, route string, date time.Time) (map[string]decimal.Decimal, error)
}

// Service runs shortfall sweeps.
type Service struct {
	db          *database.DB
	indents     *repository.IndentRepository
	runs        *repository.SweepRepository
	demand      DemandReader
	catalog     *catalog.Service
	publisher   events.Publisher
	metrics     *metrics.Registry
	clock       util.Clock
	idGenerator reconcile.IDSource
	locks       *keyLock

	workers      int
	claimTimeout time.Duration
}

// NewService creates a sweep service reading demand from the realized demand
// table. Use the With methods to attach a publisher, metrics or a clock.
func NewService(db *database.DB, cat *catalog.Service, cfg config.SweepConfig) *Service {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		db:           db,
		indents:      repository.NewIndentRepository(db.DB),
		runs:         repository.NewSweepRepository(db.DB),
		demand:       repository.NewDemandRepository(db.DB),
		catalog:      cat,
		publisher:    events.Nop{},
		clock:        util.SystemClock{},
		idGenerator:  util.NewIDGenerator(),
		locks:        newKeyLock(),
		workers:      workers,
		claimTimeout: cfg.ClaimTimeout(),
	}
}

// WithPublisher sets where adjusted indent events go.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	if p != nil {
		s.publisher = p
	}
	return s
}

// WithMetrics attaches a metrics registry.
func (s *Service) WithMetrics(reg *metrics.Registry) *Service {
	s.metrics = reg
	return s
}

// WithClock replaces the system clock.
func (s *Service) WithClock(c util.Clock) *Service {
	if c != nil {
		s.clock = c
	}
	return s
}

// WithDemandReader replaces the realized demand source.
func (s *Service) WithDemandReader(d DemandReader) *Service {
	if d != nil {
		s.demand = d
	}
	return s
}

// WithIDSource replaces the identifier generator.
func (s *Service) WithIDSource(ids reconcile.IDSource) *Service {
	if ids != nil {
		s.idGenerator = ids
	}
	return s
}

// ============================================================================
// SWEEP
// ============================================================================

// RunSweep processes every unprocessed source indent once. Failures of a
// single indent or group are reported in the summary and never abort the
// run; the returned error is reserved for failures of the run itself.
func (s *Service) RunSweep(ctx context.Context) (*models.SweepSummary, error) {
	summary := &models.SweepSummary{
		RunID:     s.idGenerator.NewID(),
		StartedAt: s.clock.Now(),
	}
	if err := s.runs.CreateRun(ctx, nil, summary.RunID, summary.StartedAt); err != nil {
		return nil, fmt.Errorf("recording sweep run: %w", err)
	}

	pending, err := s.indents.ListUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading unprocessed indents: %w", err)
	}
	cat, err := s.catalog.Snapshot(ctx, nil)
	if err != nil {
		return nil, err
	}
	converter := reconcile.NewConverter(cat)

	groups := reconcile.GroupIndents(pending)
	slog.Info("sweep started", "run_id", summary.RunID, "indents", len(pending), "groups", len(groups))

	results := make([][]models.SweepOutcome, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, group := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.processGroup(gctx, summary.RunID, group, converter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep interrupted: %w", err)
	}

	for _, outcomes := range results {
		for _, o := range outcomes {
			summary.Record(o)
		}
	}
	summary.FinishedAt = s.clock.Now()

	if err := s.runs.FinishRun(ctx, nil, summary); err != nil {
		return summary, fmt.Errorf("recording sweep outcomes: %w", err)
	}

	s.metrics.ObserveSweep(summary.Duration(), outcomeCounts(summary), summary.Created)
	if counts, err := s.indents.StatusCounts(ctx); err == nil {
		s.metrics.SetUnprocessed(counts.Unprocessed)
	}

	slog.Info("sweep finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"created", summary.Created,
		"no_shortfall", summary.WithoutShortfall,
		"already_adjusted", summary.AlreadyAdjusted,
		"errors", summary.Errors,
	)
	return summary, nil
}

// GetRun retrieves a recorded sweep run with its outcomes.
func (s *Service) GetRun(ctx context.Context, runID string) (*models.SweepSummary, error) {
	return s.runs.GetRun(ctx, runID)
}

// ListRuns retrieves the most recent sweep runs.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*models.SweepSummary, error) {
	return s.runs.ListRuns(ctx, limit)
}

// processGroup handles one (route, date) group. A demand read failure marks
// every member as errored and leaves them unprocessed.
func (s *Service) processGroup(ctx context.Context, runID string, group reconcile.IndentGroup, converter *reconcile.Converter) []models.SweepOutcome {
	outcomes := make([]models.SweepOutcome, 0, len(group.Indents))

	demand, err := s.demand.ForGroup(ctx, group.Key.Route, group.Indents[0].Date)
	if err != nil {
		slog.Warn("demand read failed", "group", group.Key.String(), "error", err)
		for _, ind := range group.Indents {
			o := newOutcome(ind)
			o.Status = models.OutcomeError
			o.Message = fmt.Sprintf("reading realized demand: %v", err)
			outcomes = append(outcomes, o)
		}
		return outcomes
	}

	alloc := reconcile.AllocateShortfalls(group, reconcile.ComputeShortfalls(group, demand))
	for _, ind := range group.Indents {
		outcomes = append(outcomes, s.processIndent(ctx, runID, ind, alloc[ind.ID], converter))
	}
	return outcomes
}

func (s *Service) processIndent(ctx context.Context, runID string, source *models.Indent, lines []reconcile.ShortfallLine, converter *reconcile.Converter) models.SweepOutcome {
	o := newOutcome(source)

	unlock := s.locks.Lock(source.ID)
	defer unlock()

	if s.claimTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.claimTimeout)
		defer cancel()
	}

	if len(lines) == 0 {
		err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
			return s.claim(ctx, tx, source.ID, models.IndentStatusProcessedNoAction)
		})
		switch {
		case err == nil:
			o.Status = models.OutcomeNoShortfall
		case errors.Is(err, reconcile.ErrDuplicateProcessing):
			o.Status = models.OutcomeAlreadyProcessed
			o.Message = err.Error()
		default:
			o.Status = models.OutcomeError
			o.Message = err.Error()
			slog.Warn("sweep indent failed", "indent_id", source.ID, "error", err)
		}
		return o
	}

	adjusted, warnings := reconcile.BuildAdjustedIndent(source, lines, converter, s.idGenerator, s.clock.Now())
	for _, w := range warnings {
		o.Warnings = append(o.Warnings, w.Error())
	}

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.claim(ctx, tx, source.ID, models.IndentStatusProcessed); err != nil {
			return err
		}
		if err := s.indents.Create(ctx, tx, adjusted); err != nil {
			if isUniqueViolation(err) {
				return reconcile.NewError(reconcile.KindDuplicateProcessing, "source_indent_id",
					"adjusted indent for %s already exists", source.ID)
			}
			return fmt.Errorf("creating adjusted indent: %w", err)
		}
		return nil
	})
	switch {
	case err == nil:
		o.Status = models.OutcomeCreated
		o.HadShortfall = true
		o.AdjustedIndentID = adjusted.ID
		o.ShortfallLines = len(adjusted.Lines)
	case errors.Is(err, reconcile.ErrDuplicateProcessing):
		o.Status = models.OutcomeAlreadyProcessed
		o.Message = err.Error()
		return o
	default:
		o.Status = models.OutcomeError
		o.HadShortfall = true
		o.Message = err.Error()
		slog.Warn("sweep indent failed", "indent_id", source.ID, "error", err)
		return o
	}

	s.publish(ctx, runID, adjusted)
	return o
}

// claim performs the check-and-set on the source indent's status.
func (s *Service) claim(ctx context.Context, tx *sql.Tx, id string, status models.IndentStatus) error {
	ok, err := s.indents.Claim(ctx, tx, id, status, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return reconcile.NewError(reconcile.KindDuplicateProcessing, "status", "indent %s was already processed", id)
	}
	return nil
}

// publish sends the adjusted indent event. The indent is already committed,
// so a publish failure is logged and counted only.
func (s *Service) publish(ctx context.Context, runID string, adjusted *models.Indent) {
	err := s.publisher.Publish(ctx, events.NewAdjustedIndentCreated(runID, adjusted))
	s.metrics.ObserveEvent(err)
	if err != nil {
		slog.Warn("publishing adjusted indent event failed",
			"adjusted_indent_id", adjusted.ID,
			"error", err,
		)
	}
}

func newOutcome(ind *models.Indent) models.SweepOutcome {
	return models.SweepOutcome{
		IndentID: ind.ID,
		Route:    ind.Route,
		Date:     ind.Date.Format(models.DateLayout),
	}
}

func outcomeCounts(s *models.SweepSummary) map[string]int {
	counts := make(map[string]int)
	for _, d := range s.Details {
		counts[d.Status.String()]++
	}
	return counts
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

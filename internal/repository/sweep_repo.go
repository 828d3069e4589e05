package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/indentrecon/indentrecon/internal/models"
)

// SweepRepository records shortfall sweep runs and their per-indent outcomes.
type SweepRepository struct {
	db *sql.DB
}

// NewSweepRepository creates a new sweep repository.
func NewSweepRepository(db *sql.DB) *SweepRepository {
	return &SweepRepository{db: db}
}

// warningSep separates warnings in the stored outcome text.
const warningSep = "\n"

// CreateRun inserts the header of a run that has just started.
func (r *SweepRepository) CreateRun(ctx context.Context, tx *sql.Tx, runID string, startedAt time.Time) error {
	_, err := conn(r.db, tx).ExecContext(ctx,
		"INSERT INTO sweep_runs (id, started_at) VALUES (?, ?)",
		runID, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("inserting sweep run: %w", err)
	}
	return nil
}

// FinishRun stores the summary counts and every outcome of a run.
func (r *SweepRepository) FinishRun(ctx context.Context, tx *sql.Tx, s *models.SweepSummary) error {
	c := conn(r.db, tx)
	res, err := c.ExecContext(ctx, `
		UPDATE sweep_runs SET
			finished_at = ?, processed = ?, created = ?, with_shortfall = ?,
			without_shortfall = ?, already_adjusted = ?, errors = ?
		WHERE id = ?`,
		formatTime(s.FinishedAt), s.Processed, s.Created, s.WithShortfall,
		s.WithoutShortfall, s.AlreadyAdjusted, s.Errors, s.RunID)
	if err != nil {
		return fmt.Errorf("finishing sweep run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sweep run %s: %w", s.RunID, ErrNotFound)
	}

	for i, o := range s.Details {
		_, err := c.ExecContext(ctx, `
			INSERT INTO sweep_outcomes
				(run_id, seq, indent_id, route, indent_date, status, message,
				 adjusted_indent_id, shortfall_lines, had_shortfall, warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, i+1, o.IndentID, nullableString(o.Route), nullableString(o.Date),
			string(o.Status), nullableString(o.Message), nullableString(o.AdjustedIndentID),
			o.ShortfallLines, boolToInt(o.HadShortfall),
			nullableString(strings.Join(o.Warnings, warningSep)))
		if err != nil {
			return fmt.Errorf("inserting outcome for %s: %w", o.IndentID, err)
		}
	}
	return nil
}

// GetRun retrieves a run summary with its outcomes in recorded order.
func (r *SweepRepository) GetRun(ctx context.Context, runID string) (*models.SweepSummary, error) {
	s, err := scanRun(r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, processed, created, with_shortfall,
			without_shortfall, already_adjusted, errors
		FROM sweep_runs WHERE id = ?`, runID))
	if err != nil {
		return nil, notFound("sweep run", runID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT indent_id, route, indent_date, status, message, adjusted_indent_id,
			shortfall_lines, had_shortfall, warnings
		FROM sweep_outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying sweep outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                                    models.SweepOutcome
			route, date, msg, adjusted, warnings sql.NullString
			status                               string
			hadShortfall                         int
		)
		if err := rows.Scan(&o.IndentID, &route, &date, &status, &msg, &adjusted,
			&o.ShortfallLines, &hadShortfall, &warnings); err != nil {
			return nil, fmt.Errorf("scanning sweep outcome: %w", err)
		}
		o.Route = route.String
		o.Date = date.String
		o.Status = models.OutcomeStatus(status)
		o.Message = msg.String
		o.AdjustedIndentID = adjusted.String
		o.HadShortfall = hadShortfall == 1
		if warnings.Valid && warnings.String != "" {
			o.Warnings = strings.Split(warnings.String, warningSep)
		}
		s.Details = append(s.Details, o)
	}
	return s, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without outcomes.
func (r *SweepRepository) ListRuns(ctx context.Context, limit int) ([]*models.SweepSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, processed, created, with_shortfall,
			without_shortfall, already_adjusted, errors
		FROM sweep_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sweep runs: %w", err)
	}
	defer rows.Close()

	var out []*models.SweepSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sweep run: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (*models.SweepSummary, error) {
	var (
		s        models.SweepSummary
		started  string
		finished sql.NullString
	)
	err := sc.Scan(&s.RunID, &started, &finished, &s.Processed, &s.Created, &s.WithShortfall,
		&s.WithoutShortfall, &s.AlreadyAdjusted, &s.Errors)
	if err != nil {
		return nil, err
	}
	s.StartedAt = parseTime(started)
	if finished.Valid {
		s.FinishedAt = parseTime(finished.String)
	}
	return &s, nil
}

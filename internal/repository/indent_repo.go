package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/indentrecon/indentrecon/internal/models"
)

// IndentRepository handles indents and their lines.
type IndentRepository struct {
	db *sql.DB
}

// NewIndentRepository creates a new indent repository.
func NewIndentRepository(db *sql.DB) *IndentRepository {
	return &IndentRepository{db: db}
}

const indentColumns = `id, route, indent_date, facility, status, is_adjusted,
	source_indent_id, created_at, processed_at`

const lineColumns = `id, indent_id, idx, sku, uom, requested_qty,
	packaging_capacity, crates, loose, difference, actual_qty`

// ============================================================================
// INDENTS
// ============================================================================

// Create inserts an indent and all of its lines.
func (r *IndentRepository) Create(ctx context.Context, tx *sql.Tx, ind *models.Indent) error {
	c := conn(r.db, tx)
	if ind.CreatedAt.IsZero() {
		ind.CreatedAt = time.Now().UTC()
	}
	if ind.Status == "" {
		ind.Status = models.IndentStatusUnprocessed
	}

	_, err := c.ExecContext(ctx, `
		INSERT INTO indents (`+indentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ind.ID,
		ind.Route,
		formatDate(ind.Date),
		nullableString(ind.Facility),
		string(ind.Status),
		boolToInt(ind.IsAdjusted),
		nullableStringPtr(ind.SourceIndentID),
		formatTime(ind.CreatedAt),
		nullableTime(ind.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting indent: %w", err)
	}

	for i := range ind.Lines {
		ind.Lines[i].IndentID = ind.ID
		if ind.Lines[i].Idx == 0 {
			ind.Lines[i].Idx = i + 1
		}
		if err := r.insertLine(ctx, c, &ind.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves an indent with its lines.
func (r *IndentRepository) Get(ctx context.Context, tx *sql.Tx, id string) (*models.Indent, error) {
	c := conn(r.db, tx)
	ind, err := scanIndent(c.QueryRowContext(ctx, "SELECT "+indentColumns+" FROM indents WHERE id = ?", id))
	if err != nil {
		return nil, notFound("indent", id, err)
	}

	lines, err := r.linesFor(ctx, c, []string{id})
	if err != nil {
		return nil, err
	}
	ind.Lines = lines[id]
	return ind, nil
}

// GetAdjustedFor returns the adjusted indent created from sourceID.
func (r *IndentRepository) GetAdjustedFor(ctx context.Context, tx *sql.Tx, sourceID string) (*models.Indent, error) {
	c := conn(r.db, tx)
	var id string
	err := c.QueryRowContext(ctx, "SELECT id FROM indents WHERE source_indent_id = ?", sourceID).Scan(&id)
	if err != nil {
		return nil, notFound("adjusted indent for", sourceID, err)
	}
	return r.Get(ctx, tx, id)
}

// List returns a page of indents matching filter, newest first, with lines.
func (r *IndentRepository) List(ctx context.Context, filter models.IndentFilter, page models.Pagination) (*models.IndentList, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Route != "" {
		conds = append(conds, "route = ?")
		args = append(args, filter.Route)
	}
	if filter.Date != nil {
		conds = append(conds, "indent_date = ?")
		args = append(args, formatDate(*filter.Date))
	}
	if !filter.IncludeAdjusted {
		conds = append(conds, "is_adjusted = 0")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indents "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting indents: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM indents %s
		ORDER BY indent_date DESC, created_at DESC, id
		LIMIT ? OFFSET ?`, indentColumns, where)
	indents, err := r.query(ctx, r.db, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, err
	}

	return &models.IndentList{
		Indents:    indents,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.Limit(),
		TotalPages: page.TotalPages(total),
	}, nil
}

// ListUnprocessed returns every unprocessed source indent with its lines,
// oldest first. These are the sweep candidates.
func (r *IndentRepository) ListUnprocessed(ctx context.Context) ([]*models.Indent, error) {
	return r.query(ctx, r.db, `SELECT `+indentColumns+` FROM indents
		WHERE status = 'UNPROCESSED' AND is_adjusted = 0
		ORDER BY created_at, id`)
}

func (r *IndentRepository) query(ctx context.Context, c dbtx, query string, args ...any) ([]*models.Indent, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying indents: %w", err)
	}

	var (
		indents []*models.Indent
		ids     []string
	)
	for rows.Next() {
		ind, err := scanIndent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning indent: %w", err)
		}
		indents = append(indents, ind)
		ids = append(ids, ind.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := r.linesFor(ctx, c, ids)
	if err != nil {
		return nil, err
	}
	for _, ind := range indents {
		ind.Lines = lines[ind.ID]
	}
	return indents, nil
}

// Claim moves an unprocessed indent to a terminal status. It reports false
// when another caller got there first. This is the check-and-set that keeps
// one adjusted indent per source indent.
func (r *IndentRepository) Claim(ctx context.Context, tx *sql.Tx, id string, status models.IndentStatus, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("claim requires a terminal status, got %s", status)
	}
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE indents SET status = ?, processed_at = ?
		WHERE id = ? AND status = 'UNPROCESSED'`,
		string(status), formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("claiming indent %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming indent %s: %w", id, err)
	}
	return n == 1, nil
}

// StatusCounts tallies source indents by status and counts adjusted indents.
func (r *IndentRepository) StatusCounts(ctx context.Context) (*models.IndentStatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, is_adjusted, COUNT(*) FROM indents GROUP BY status, is_adjusted`)
	if err != nil {
		return nil, fmt.Errorf("counting indents: %w", err)
	}
	defer rows.Close()

	var counts models.IndentStatusCounts
	for rows.Next() {
		var (
			status   string
			adjusted int
			n        int
		)
		if err := rows.Scan(&status, &adjusted, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		if adjusted == 1 {
			counts.Adjusted += n
			continue
		}
		switch models.IndentStatus(status) {
		case models.IndentStatusUnprocessed:
			counts.Unprocessed += n
		case models.IndentStatusProcessedNoAction:
			counts.ProcessedNoAction += n
		case models.IndentStatusProcessed:
			counts.Processed += n
		}
	}
	return &counts, rows.Err()
}

// ============================================================================
// LINES
// ============================================================================

// AddLine appends a line to an indent, assigning the next index.
func (r *IndentRepository) AddLine(ctx context.Context, tx *sql.Tx, line *models.IndentLine) error {
	c := conn(r.db, tx)
	if err := c.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx), 0) + 1 FROM indent_lines WHERE indent_id = ?", line.IndentID,
	).Scan(&line.Idx); err != nil {
		return fmt.Errorf("next line index: %w", err)
	}
	return r.insertLine(ctx, c, line)
}

// GetLine retrieves a single line.
func (r *IndentRepository) GetLine(ctx context.Context, tx *sql.Tx, id string) (*models.IndentLine, error) {
	line, err := scanLine(conn(r.db, tx).QueryRowContext(ctx,
		"SELECT "+lineColumns+" FROM indent_lines WHERE id = ?", id))
	if err != nil {
		return nil, notFound("indent line", id, err)
	}
	return line, nil
}

// UpdateLine persists every field of a line.
func (r *IndentRepository) UpdateLine(ctx context.Context, tx *sql.Tx, line *models.IndentLine) error {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE indent_lines SET
			sku = ?, uom = ?, requested_qty = ?, packaging_capacity = ?,
			crates = ?, loose = ?, difference = ?, actual_qty = ?
		WHERE id = ?`,
		line.SKU, nullableString(line.UOM), line.RequestedQty, nullableInt(line.PackagingCapacity),
		line.Crates, line.Loose, line.Difference, line.ActualQty,
		line.ID,
	)
	if err != nil {
		return fmt.Errorf("updating indent line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("indent line %s: %w", line.ID, ErrNotFound)
	}
	return nil
}

// DeleteLine removes a line.
func (r *IndentRepository) DeleteLine(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := conn(r.db, tx).ExecContext(ctx, "DELETE FROM indent_lines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting indent line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("indent line %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *IndentRepository) insertLine(ctx context.Context, c dbtx, line *models.IndentLine) error {
	_, err := c.ExecContext(ctx, `
		INSERT INTO indent_lines (`+lineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID,
		line.IndentID,
		line.Idx,
		line.SKU,
		nullableString(line.UOM),
		line.RequestedQty,
		nullableInt(line.PackagingCapacity),
		line.Crates,
		line.Loose,
		line.Difference,
		line.ActualQty,
	)
	if err != nil {
		return fmt.Errorf("inserting indent line: %w", err)
	}
	return nil
}

func (r *IndentRepository) linesFor(ctx context.Context, c dbtx, indentIDs []string) (map[string][]models.IndentLine, error) {
	out := make(map[string][]models.IndentLine, len(indentIDs))
	if len(indentIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(indentIDs))
	for i, id := range indentIDs {
		args[i] = id
	}
	rows, err := c.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM indent_lines WHERE indent_id IN (%s) ORDER BY indent_id, idx",
		lineColumns, placeholders(len(indentIDs))), args...)
	if err != nil {
		return nil, fmt.Errorf("querying indent lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning indent line: %w", err)
		}
		out[line.IndentID] = append(out[line.IndentID], *line)
	}
	return out, rows.Err()
}

func scanIndent(s scanner) (*models.Indent, error) {
	var (
		ind       models.Indent
		date      string
		facility  sql.NullString
		status    string
		adjusted  int
		sourceID  sql.NullString
		created   string
		processed sql.NullString
	)
	err := s.Scan(&ind.ID, &ind.Route, &date, &facility, &status, &adjusted,
		&sourceID, &created, &processed)
	if err != nil {
		return nil, err
	}

	ind.Date = parseDate(date)
	ind.Facility = facility.String
	ind.Status = models.IndentStatus(status)
	ind.IsAdjusted = adjusted == 1
	if sourceID.Valid {
		ind.SourceIndentID = &sourceID.String
	}
	ind.CreatedAt = parseTime(created)
	ind.ProcessedAt = parseTimePtr(processed)
	return &ind, nil
}

func scanLine(s scanner) (*models.IndentLine, error) {
	var (
		line     models.IndentLine
		uom      sql.NullString
		capacity sql.NullInt64
	)
	err := s.Scan(&line.ID, &line.IndentID, &line.Idx, &line.SKU, &uom, &line.RequestedQty,
		&capacity, &line.Crates, &line.Loose, &line.Difference, &line.ActualQty)
	if err != nil {
		return nil, err
	}
	line.UOM = uom.String
	if capacity.Valid {
		v := int(capacity.Int64)
		line.PackagingCapacity = &v
	}
	return &line, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/indentrecon/indentrecon/internal/models"
)

// DeliveryRepository handles delivery notes, the delivery issue notes raised
// against them and the resulting stock movements.
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new delivery repository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const issueLineColumns = `id, note_id, idx, item_code, uom, stock_uom, conversion_factor,
	qty, stock_qty, delivered_qty, missing_qty, damaged_qty, excess_qty, belongs_to_delivery`

// ============================================================================
// DELIVERY NOTES
// ============================================================================

// CreateDeliveryNote inserts a delivery note and its items.
func (r *DeliveryRepository) CreateDeliveryNote(ctx context.Context, tx *sql.Tx, note *models.DeliveryNote) error {
	c := conn(r.db, tx)
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	_, err := c.ExecContext(ctx,
		"INSERT INTO delivery_notes (id, route, delivery_date, created_at) VALUES (?, ?, ?, ?)",
		note.ID, note.Route, formatDate(note.Date), formatTime(note.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting delivery note: %w", err)
	}

	for i, it := range note.Items {
		_, err := c.ExecContext(ctx, `
			INSERT INTO delivery_note_items
				(delivery_note_id, idx, item_code, uom, stock_uom, qty, conversion_factor, stock_qty)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			note.ID, i+1, it.ItemCode, it.UOM, it.StockUOM, it.Qty, it.ConversionFactor, it.StockQty)
		if err != nil {
			return fmt.Errorf("inserting delivery note item %s: %w", it.ItemCode, err)
		}
	}
	return nil
}

// GetDeliveryNote retrieves a delivery note with its items.
func (r *DeliveryRepository) GetDeliveryNote(ctx context.Context, tx *sql.Tx, id string) (*models.DeliveryNote, error) {
	c := conn(r.db, tx)
	var (
		note          models.DeliveryNote
		date, created string
	)
	err := c.QueryRowContext(ctx,
		"SELECT id, route, delivery_date, created_at FROM delivery_notes WHERE id = ?", id,
	).Scan(&note.ID, &note.Route, &date, &created)
	if err != nil {
		return nil, notFound("delivery note", id, err)
	}
	note.Date = parseDate(date)
	note.CreatedAt = parseTime(created)

	rows, err := c.QueryContext(ctx, `
		SELECT item_code, uom, stock_uom, qty, conversion_factor, stock_qty
		FROM delivery_note_items WHERE delivery_note_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("querying delivery note items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.DeliveryNoteItem
		if err := rows.Scan(&it.ItemCode, &it.UOM, &it.StockUOM, &it.Qty, &it.ConversionFactor, &it.StockQty); err != nil {
			return nil, fmt.Errorf("scanning delivery note item: %w", err)
		}
		note.Items = append(note.Items, it)
	}
	return &note, rows.Err()
}

// ListDeliveryNotes lists delivery note headers, newest route date first.
// Items are not loaded. An empty route lists every route.
func (r *DeliveryRepository) ListDeliveryNotes(ctx context.Context, route string, limit int) ([]*models.DeliveryNote, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, route, delivery_date, created_at FROM delivery_notes"
	var args []any
	if route != "" {
		query += " WHERE route = ?"
		args = append(args, route)
	}
	query += " ORDER BY delivery_date DESC, route, created_at LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.DeliveryNote
	for rows.Next() {
		var (
			note          models.DeliveryNote
			date, created string
		)
		if err := rows.Scan(&note.ID, &note.Route, &date, &created); err != nil {
			return nil, fmt.Errorf("scanning delivery note: %w", err)
		}
		note.Date = parseDate(date)
		note.CreatedAt = parseTime(created)
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

// ============================================================================
// ISSUE NOTES
// ============================================================================

// CreateIssueNote inserts an issue note header.
func (r *DeliveryRepository) CreateIssueNote(ctx context.Context, tx *sql.Tx, note *models.DeliveryIssueNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	if note.Status == "" {
		note.Status = models.IssueNoteStatusDraft
	}
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO delivery_issue_notes (id, delivery_note_id, status, created_at, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.DeliveryNoteID, string(note.Status), formatTime(note.CreatedAt), nullableTime(note.SubmittedAt))
	if err != nil {
		return fmt.Errorf("inserting issue note: %w", err)
	}
	return nil
}

// GetIssueNote retrieves an issue note with its lines.
func (r *DeliveryRepository) GetIssueNote(ctx context.Context, tx *sql.Tx, id string) (*models.DeliveryIssueNote, error) {
	c := conn(r.db, tx)
	var (
		note      models.DeliveryIssueNote
		status    string
		created   string
		submitted sql.NullString
	)
	err := c.QueryRowContext(ctx, `
		SELECT id, delivery_note_id, status, created_at, submitted_at
		FROM delivery_issue_notes WHERE id = ?`, id,
	).Scan(&note.ID, &note.DeliveryNoteID, &status, &created, &submitted)
	if err != nil {
		return nil, notFound("issue note", id, err)
	}
	note.Status = models.IssueNoteStatus(status)
	note.CreatedAt = parseTime(created)
	note.SubmittedAt = parseTimePtr(submitted)

	rows, err := c.QueryContext(ctx,
		"SELECT "+issueLineColumns+" FROM delivery_issue_lines WHERE note_id = ? ORDER BY idx", id)
	if err != nil {
		return nil, fmt.Errorf("querying issue lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanIssueLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue line: %w", err)
		}
		note.Lines = append(note.Lines, *line)
	}
	return &note, rows.Err()
}

// MarkSubmitted records submission of an issue note.
func (r *DeliveryRepository) MarkSubmitted(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE delivery_issue_notes SET status = 'SUBMITTED', submitted_at = ?
		WHERE id = ? AND status = 'DRAFT'`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("submitting issue note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("draft issue note %s: %w", id, ErrNotFound)
	}
	return nil
}

// ============================================================================
// ISSUE LINES
// ============================================================================

// AddIssueLine appends a line, assigning the next index.
func (r *DeliveryRepository) AddIssueLine(ctx context.Context, tx *sql.Tx, line *models.DeliveryIssueLine) error {
	c := conn(r.db, tx)
	if err := c.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx), 0) + 1 FROM delivery_issue_lines WHERE note_id = ?", line.NoteID,
	).Scan(&line.Idx); err != nil {
		return fmt.Errorf("next issue line index: %w", err)
	}

	_, err := c.ExecContext(ctx, `
		INSERT INTO delivery_issue_lines (`+issueLineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.NoteID, line.Idx, line.ItemCode,
		nullableString(line.UOM), nullableString(line.StockUOM), line.ConversionFactor,
		line.Qty, line.StockQty, line.DeliveredQty,
		line.MissingQty, line.DamagedQty, line.ExcessQty,
		boolToInt(line.BelongsToDelivery),
	)
	if err != nil {
		return fmt.Errorf("inserting issue line: %w", err)
	}
	return nil
}

// GetIssueLine retrieves a single issue line.
func (r *DeliveryRepository) GetIssueLine(ctx context.Context, tx *sql.Tx, id string) (*models.DeliveryIssueLine, error) {
	line, err := scanIssueLine(conn(r.db, tx).QueryRowContext(ctx,
		"SELECT "+issueLineColumns+" FROM delivery_issue_lines WHERE id = ?", id))
	if err != nil {
		return nil, notFound("issue line", id, err)
	}
	return line, nil
}

// UpdateIssueLine persists every editable field of a line. Ownership is
// fixed at creation and never updated.
func (r *DeliveryRepository) UpdateIssueLine(ctx context.Context, tx *sql.Tx, line *models.DeliveryIssueLine) error {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE delivery_issue_lines SET
			item_code = ?, uom = ?, stock_uom = ?, conversion_factor = ?,
			qty = ?, stock_qty = ?, delivered_qty = ?,
			missing_qty = ?, damaged_qty = ?, excess_qty = ?
		WHERE id = ?`,
		line.ItemCode, nullableString(line.UOM), nullableString(line.StockUOM), line.ConversionFactor,
		line.Qty, line.StockQty, line.DeliveredQty,
		line.MissingQty, line.DamagedQty, line.ExcessQty,
		line.ID,
	)
	if err != nil {
		return fmt.Errorf("updating issue line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("issue line %s: %w", line.ID, ErrNotFound)
	}
	return nil
}

// DeleteIssueLine removes a line.
func (r *DeliveryRepository) DeleteIssueLine(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := conn(r.db, tx).ExecContext(ctx, "DELETE FROM delivery_issue_lines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting issue line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("issue line %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteOwnedLines removes every line of a note sourced from its delivery
// note, returning how many were removed.
func (r *DeliveryRepository) DeleteOwnedLines(ctx context.Context, tx *sql.Tx, noteID string) (int64, error) {
	res, err := conn(r.db, tx).ExecContext(ctx,
		"DELETE FROM delivery_issue_lines WHERE note_id = ? AND belongs_to_delivery = 1", noteID)
	if err != nil {
		return 0, fmt.Errorf("deleting owned issue lines: %w", err)
	}
	return res.RowsAffected()
}

// ============================================================================
// STOCK MOVEMENTS
// ============================================================================

// CreateStockMovement records stock moved to a missing or damaged target.
func (r *DeliveryRepository) CreateStockMovement(ctx context.Context, tx *sql.Tx, m *models.StockMovement) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO stock_movements (id, issue_note_id, item_code, quantity, target, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.IssueNoteID, m.ItemCode, m.Quantity, string(m.Target), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting stock movement: %w", err)
	}
	return nil
}

// ListStockMovements returns the movements recorded for an issue note.
func (r *DeliveryRepository) ListStockMovements(ctx context.Context, issueNoteID string) ([]*models.StockMovement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, issue_note_id, item_code, quantity, target, created_at
		FROM stock_movements WHERE issue_note_id = ? ORDER BY item_code, target`, issueNoteID)
	if err != nil {
		return nil, fmt.Errorf("querying stock movements: %w", err)
	}
	defer rows.Close()

	var out []*models.StockMovement
	for rows.Next() {
		var (
			m               models.StockMovement
			target, created string
		)
		if err := rows.Scan(&m.ID, &m.IssueNoteID, &m.ItemCode, &m.Quantity, &target, &created); err != nil {
			return nil, fmt.Errorf("scanning stock movement: %w", err)
		}
		m.Target = models.StockMovementTarget(target)
		m.CreatedAt = parseTime(created)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func scanIssueLine(s scanner) (*models.DeliveryIssueLine, error) {
	var (
		line          models.DeliveryIssueLine
		uom, stockUOM sql.NullString
		owned         int
	)
	err := s.Scan(&line.ID, &line.NoteID, &line.Idx, &line.ItemCode, &uom, &stockUOM,
		&line.ConversionFactor, &line.Qty, &line.StockQty, &line.DeliveredQty,
		&line.MissingQty, &line.DamagedQty, &line.ExcessQty, &owned)
	if err != nil {
		return nil, err
	}
	line.UOM = uom.String
	line.StockUOM = stockUOM.String
	line.BelongsToDelivery = owned == 1
	return &line, nil
}

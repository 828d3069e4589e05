// Package deliveryissues manages delivery issue notes: rows generated from a
// delivery record, freestanding excess rows, corrective quantity edits and
// submission into stock movements.
package deliveryissues

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/metrics"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Service provides delivery issue note operations.
type Service struct {
	db          *database.DB
	deliveries  *repository.DeliveryRepository
	catalog     *catalog.Service
	metrics     *metrics.Registry
	idGenerator *util.IDGenerator
	clock       util.Clock
}

// NewService creates a new delivery issue service. reg may be nil.
func NewService(db *database.DB, cat *catalog.Service, reg *metrics.Registry, clock util.Clock) *Service {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Service{
		db:          db,
		deliveries:  repository.NewDeliveryRepository(db.DB),
		catalog:     cat,
		metrics:     reg,
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
	}
}

// ============================================================================
// NOTES
// ============================================================================

// Open creates a draft issue note for a delivery record, with one owned line
// per delivered item and every corrective quantity at 0.
func (s *Service) Open(ctx context.Context, deliveryNoteID string) (*models.DeliveryIssueNote, error) {
	var noteID string
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		delivery, err := s.deliveries.GetDeliveryNote(ctx, tx, deliveryNoteID)
		if err != nil {
			return err
		}
		note := &models.DeliveryIssueNote{
			ID:             s.idGenerator.NewID(),
			DeliveryNoteID: delivery.ID,
			Status:         models.IssueNoteStatusDraft,
			CreatedAt:      s.clock.Now(),
		}
		if err := s.deliveries.CreateIssueNote(ctx, tx, note); err != nil {
			return fmt.Errorf("creating issue note: %w", err)
		}
		noteID = note.ID
		return s.addOwnedLines(ctx, tx, note.ID, delivery)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("issue note opened", "issue_note_id", noteID, "delivery_note_id", deliveryNoteID)
	return s.deliveries.GetIssueNote(ctx, nil, noteID)
}

// ListDeliveries lists the delivery records notes can be opened against.
func (s *Service) ListDeliveries(ctx context.Context, route string, limit int) ([]*models.DeliveryNote, error) {
	return s.deliveries.ListDeliveryNotes(ctx, route, limit)
}

// GetNote retrieves an issue note with its lines.
func (s *Service) GetNote(ctx context.Context, id string) (*models.DeliveryIssueNote, error) {
	return s.deliveries.GetIssueNote(ctx, nil, id)
}

// Regenerate replaces the owned lines of a draft note with fresh copies of
// the delivery record. Freestanding lines are kept.
func (s *Service) Regenerate(ctx context.Context, noteID string) (*models.DeliveryIssueNote, error) {
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		note, err := s.draftNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		delivery, err := s.deliveries.GetDeliveryNote(ctx, tx, note.DeliveryNoteID)
		if err != nil {
			return err
		}
		removed, err := s.deliveries.DeleteOwnedLines(ctx, tx, noteID)
		if err != nil {
			return err
		}
		slog.Debug("owned lines removed", "issue_note_id", noteID, "count", removed)
		return s.addOwnedLines(ctx, tx, noteID, delivery)
	})
	if err != nil {
		return nil, err
	}
	return s.deliveries.GetIssueNote(ctx, nil, noteID)
}

// Submit finalises a draft note. Every line is checked; missing and damaged
// quantities become stock movements to the MISSING and DAMAGED targets.
func (s *Service) Submit(ctx context.Context, noteID string) (*SubmitResult, error) {
	result := &SubmitResult{NoteID: noteID}
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		note, err := s.draftNote(ctx, tx, noteID)
		if err != nil {
			return err
		}

		var validator reconcile.Validator
		for i := range note.Lines {
			line := &note.Lines[i]
			if err := validator.Check(*line); err != nil {
				s.observe(err)
				return fmt.Errorf("line %d (%s): %w", line.Idx, line.ItemCode, err)
			}
		}

		now := s.clock.Now()
		for _, line := range note.Lines {
			for _, mv := range []struct {
				qty    decimal.Decimal
				target models.StockMovementTarget
			}{
				{line.MissingQty, models.StockTargetMissing},
				{line.DamagedQty, models.StockTargetDamaged},
			} {
				if !mv.qty.IsPositive() {
					continue
				}
				m := &models.StockMovement{
					ID:          s.idGenerator.NewID(),
					IssueNoteID: noteID,
					ItemCode:    line.ItemCode,
					Quantity:    mv.qty,
					Target:      mv.target,
					CreatedAt:   now,
				}
				if err := s.deliveries.CreateStockMovement(ctx, tx, m); err != nil {
					return err
				}
				result.Movements = append(result.Movements, m)
			}
		}
		return s.deliveries.MarkSubmitted(ctx, tx, noteID, now)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("issue note submitted", "issue_note_id", noteID, "movements", len(result.Movements))
	return result, nil
}

// StockMovements lists the movements written when a note was submitted.
func (s *Service) StockMovements(ctx context.Context, noteID string) ([]*models.StockMovement, error) {
	return s.deliveries.ListStockMovements(ctx, noteID)
}

// ============================================================================
// LINES
// ============================================================================

// AddLine appends a freestanding line for an item outside the delivery
// record. Such lines only carry excess and damaged quantities.
func (s *Service) AddLine(ctx context.Context, noteID string, input AddLineInput) (*models.DeliveryIssueLine, error) {
	var (
		line    models.DeliveryIssueLine
		warning error
	)
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.draftNote(ctx, tx, noteID); err != nil {
			return err
		}
		editor, err := s.editor(ctx, tx, noteID)
		if err != nil {
			return err
		}

		line = models.DeliveryIssueLine{
			ID:               s.idGenerator.NewID(),
			NoteID:           noteID,
			ConversionFactor: decimal.NewFromInt(1),
		}
		line, err = editor.SetItemCode(line, input.ItemCode)
		if err != nil && !reconcile.IsWarning(err) {
			return err
		}
		warning = err
		if input.UOM != "" && input.UOM != line.UOM {
			if line, err = editor.SetUOM(line, input.UOM); err != nil && !reconcile.IsWarning(err) {
				return err
			}
		}
		if line, err = editor.SetQty(line, input.Qty); err != nil {
			return err
		}
		if !input.ExcessQty.IsZero() {
			if line, err = editor.SetExcessQty(line, input.ExcessQty); err != nil {
				return err
			}
		}
		if !input.DamagedQty.IsZero() {
			if line, err = editor.SetDamagedQty(line, input.DamagedQty); err != nil {
				return err
			}
		}
		return s.deliveries.AddIssueLine(ctx, tx, &line)
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}
	return &line, warning
}

// SetItemCode changes the item of a freestanding line.
func (s *Service) SetItemCode(ctx context.Context, lineID, itemCode string) (*models.DeliveryIssueLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.DeliveryLineEditor, l models.DeliveryIssueLine) (models.DeliveryIssueLine, error) {
		return e.SetItemCode(l, itemCode)
	})
}

// SetUOM changes the unit a line's quantity is recorded in.
func (s *Service) SetUOM(ctx context.Context, lineID, uom string) (*models.DeliveryIssueLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.DeliveryLineEditor, l models.DeliveryIssueLine) (models.DeliveryIssueLine, error) {
		return e.SetUOM(l, uom)
	})
}

// SetQty changes a line's row quantity.
func (s *Service) SetQty(ctx context.Context, lineID string, qty decimal.Decimal) (*models.DeliveryIssueLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.DeliveryLineEditor, l models.DeliveryIssueLine) (models.DeliveryIssueLine, error) {
		return e.SetQty(l, qty)
	})
}

// SetConversionFactor overrides a line's conversion factor.
func (s *Service) SetConversionFactor(ctx context.Context, lineID string, factor decimal.Decimal) (*models.DeliveryIssueLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.DeliveryLineEditor, l models.DeliveryIssueLine) (models.DeliveryIssueLine, error) {
		return e.SetConversionFactor(l, factor)
	})
}

// SetField applies a raw value to one input field of a line. Quantities and
// the conversion factor are parsed as decimals.
func (s *Service) SetField(ctx context.Context, lineID string, field reconcile.DeliveryField, value string) (*models.DeliveryIssueLine, error) {
	switch field {
	case reconcile.DeliveryFieldItemCode:
		return s.SetItemCode(ctx, lineID, value)
	case reconcile.DeliveryFieldUOM:
		return s.SetUOM(ctx, lineID, value)
	}

	qty, err := decimal.NewFromString(value)
	if err != nil {
		return nil, reconcile.NewError(reconcile.KindInvalidInput, string(field), "not a number: %q", value)
	}
	switch field {
	case reconcile.DeliveryFieldQty:
		return s.SetQty(ctx, lineID, qty)
	case reconcile.DeliveryFieldConversionFactor:
		return s.SetConversionFactor(ctx, lineID, qty)
	default:
		return s.SetCorrective(ctx, lineID, field, qty)
	}
}

// SetCorrective records a missing, damaged or excess quantity. The corrected
// line is persisted even when the edit violated a rule; the violation is
// returned alongside it.
func (s *Service) SetCorrective(ctx context.Context, lineID string, field reconcile.DeliveryField, qty decimal.Decimal) (*models.DeliveryIssueLine, error) {
	if !field.Corrective() {
		return nil, reconcile.NewError(reconcile.KindInvalidInput, string(field), "%s is not a corrective quantity", field)
	}
	return s.editLine(ctx, lineID, func(e *reconcile.DeliveryLineEditor, l models.DeliveryIssueLine) (models.DeliveryIssueLine, error) {
		switch field {
		case reconcile.DeliveryFieldMissingQty:
			return e.SetMissingQty(l, qty)
		case reconcile.DeliveryFieldDamagedQty:
			return e.SetDamagedQty(l, qty)
		default:
			return e.SetExcessQty(l, qty)
		}
	})
}

// DeleteLine removes a freestanding line. Owned lines are refused.
func (s *Service) DeleteLine(ctx context.Context, lineID string) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		line, err := s.deliveries.GetIssueLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if _, err := s.draftNote(ctx, tx, line.NoteID); err != nil {
			return err
		}
		if err := reconcile.CheckDelete(*line); err != nil {
			s.observe(err)
			return err
		}
		return s.deliveries.DeleteIssueLine(ctx, tx, lineID)
	})
}

// ValidateLine runs the line rules against an unsaved line after change and
// returns the corrected copy. Nothing is persisted.
func (s *Service) ValidateLine(line models.DeliveryIssueLine, change reconcile.Change) (models.DeliveryIssueLine, error) {
	out, err := reconcile.Validator{}.ValidateLine(line, change)
	s.observe(err)
	return out, err
}

// editLine applies edit to a stored line. Rule violations from corrective
// edits come back with a corrected line, which is persisted; other failures
// leave the stored line unchanged.
func (s *Service) editLine(ctx context.Context, lineID string, edit func(*reconcile.DeliveryLineEditor, models.DeliveryIssueLine) (models.DeliveryIssueLine, error)) (*models.DeliveryIssueLine, error) {
	var (
		updated   models.DeliveryIssueLine
		violation error
	)
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		line, err := s.deliveries.GetIssueLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if _, err := s.draftNote(ctx, tx, line.NoteID); err != nil {
			return err
		}
		editor, err := s.editor(ctx, tx, line.NoteID)
		if err != nil {
			return err
		}

		updated, err = edit(editor, *line)
		if err != nil {
			if !persistable(err) {
				return err
			}
			violation = err
		}
		return s.deliveries.UpdateIssueLine(ctx, tx, &updated)
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}
	s.observe(violation)
	return &updated, violation
}

// persistable reports whether a failed edit still produced a line worth
// saving: corrective rule violations are corrected in place and warnings
// leave the line usable.
func persistable(err error) bool {
	kind, ok := reconcile.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case reconcile.KindOwnershipViolation, reconcile.KindQuantityExceeded:
		return true
	}
	return kind.Warning()
}

func (s *Service) addOwnedLines(ctx context.Context, tx *sql.Tx, noteID string, delivery *models.DeliveryNote) error {
	for _, it := range delivery.Items {
		line := &models.DeliveryIssueLine{
			ID:                s.idGenerator.NewID(),
			NoteID:            noteID,
			ItemCode:          it.ItemCode,
			UOM:               it.UOM,
			StockUOM:          it.StockUOM,
			ConversionFactor:  it.ConversionFactor,
			Qty:               it.Qty,
			StockQty:          it.StockQty,
			DeliveredQty:      it.Qty,
			MissingQty:        decimal.Zero,
			DamagedQty:        decimal.Zero,
			ExcessQty:         decimal.Zero,
			BelongsToDelivery: true,
		}
		if err := s.deliveries.AddIssueLine(ctx, tx, line); err != nil {
			return fmt.Errorf("adding line for %s: %w", it.ItemCode, err)
		}
	}
	return nil
}

func (s *Service) editor(ctx context.Context, tx *sql.Tx, noteID string) (*reconcile.DeliveryLineEditor, error) {
	note, err := s.deliveries.GetIssueNote(ctx, tx, noteID)
	if err != nil {
		return nil, err
	}
	delivery, err := s.deliveries.GetDeliveryNote(ctx, tx, note.DeliveryNoteID)
	if err != nil {
		return nil, err
	}
	cat, err := s.catalog.Snapshot(ctx, tx)
	if err != nil {
		return nil, err
	}
	return reconcile.NewDeliveryLineEditor(cat, delivery), nil
}

// draftNote loads a note that may still change. Submitted notes are final.
func (s *Service) draftNote(ctx context.Context, tx *sql.Tx, id string) (*models.DeliveryIssueNote, error) {
	note, err := s.deliveries.GetIssueNote(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if note.Status != models.IssueNoteStatusDraft {
		return nil, reconcile.NewError(reconcile.KindProtectedRecord, "status", "issue note %s is %s", id, note.Status)
	}
	return note, nil
}

func (s *Service) observe(err error) {
	if err == nil {
		return
	}
	if kind, ok := reconcile.KindOf(err); ok && !kind.Warning() {
		s.metrics.ObserveViolation(kind.String())
	}
}

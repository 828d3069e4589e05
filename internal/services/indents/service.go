// Package indents provides indent entry: creating indents, editing their
// lines through the packaging and difference rules, and readiness checks.
package indents

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Service provides indent operations.
type Service struct {
	db          *database.DB
	indents     *repository.IndentRepository
	catalog     *catalog.Service
	idGenerator *util.IDGenerator
	clock       util.Clock
}

// NewService creates a new indent service.
func NewService(db *database.DB, cat *catalog.Service, clock util.Clock) *Service {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Service{
		db:          db,
		indents:     repository.NewIndentRepository(db.DB),
		catalog:     cat,
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
	}
}

// ============================================================================
// INDENTS
// ============================================================================

// CreateIndent creates an unprocessed source indent. Lines are packaged from
// the item master; SKUs without packaging are kept as loose and reported as
// warnings.
func (s *Service) CreateIndent(ctx context.Context, input CreateIndentInput) (*CreateIndentResult, error) {
	if input.Route == "" {
		return nil, reconcile.NewError(reconcile.KindInvalidInput, "route", "route is required")
	}
	if input.Date.IsZero() {
		return nil, reconcile.NewError(reconcile.KindInvalidInput, "date", "date is required")
	}

	result := &CreateIndentResult{}
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		editor, err := s.editor(ctx, tx)
		if err != nil {
			return err
		}

		indent := &models.Indent{
			ID:        s.idGenerator.NewID(),
			Route:     input.Route,
			Date:      input.Date,
			Facility:  input.Facility,
			Status:    models.IndentStatusUnprocessed,
			CreatedAt: s.clock.Now(),
		}
		for _, li := range input.Lines {
			line, warning, err := s.buildLine(editor, li)
			if err != nil {
				return err
			}
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
			}
			indent.Lines = append(indent.Lines, line)
		}

		if err := s.indents.Create(ctx, tx, indent); err != nil {
			return fmt.Errorf("creating indent: %w", err)
		}
		result.Indent = indent
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("indent created",
		"indent_id", result.Indent.ID,
		"route", result.Indent.Route,
		"lines", len(result.Indent.Lines),
	)
	return result, nil
}

// GetIndent retrieves an indent with its lines.
func (s *Service) GetIndent(ctx context.Context, id string) (*models.Indent, error) {
	return s.indents.Get(ctx, nil, id)
}

// GetAdjustedFor retrieves the adjusted indent created for a source indent.
func (s *Service) GetAdjustedFor(ctx context.Context, sourceID string) (*models.Indent, error) {
	return s.indents.GetAdjustedFor(ctx, nil, sourceID)
}

// ListIndents retrieves indents matching filter.
func (s *Service) ListIndents(ctx context.Context, filter models.IndentFilter, page models.Pagination) (*models.IndentList, error) {
	return s.indents.List(ctx, filter, page)
}

// StatusCounts tallies indents by status.
func (s *Service) StatusCounts(ctx context.Context) (*models.IndentStatusCounts, error) {
	return s.indents.StatusCounts(ctx)
}

// PrePopulate adds every catalog SKU missing from the indent as a zero
// quantity line.
func (s *Service) PrePopulate(ctx context.Context, indentID string) (*PrePopulateResult, error) {
	result := &PrePopulateResult{}
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		indent, err := s.editableIndent(ctx, tx, indentID)
		if err != nil {
			return err
		}
		cat, err := s.catalog.Snapshot(ctx, tx)
		if err != nil {
			return err
		}

		skus := make([]string, 0, len(cat))
		for sku := range cat {
			skus = append(skus, sku)
		}
		slices.Sort(skus)

		for _, sku := range skus {
			if indent.HasSKU(sku) {
				result.Skipped++
				continue
			}
			line := &models.IndentLine{
				ID:       s.idGenerator.NewID(),
				IndentID: indent.ID,
				SKU:      sku,
				UOM:      cat[sku].StockUOM,
			}
			if err := s.indents.AddLine(ctx, tx, line); err != nil {
				return err
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckReady returns InvalidInput unless the indent has at least one line
// with a positive requested quantity.
func (s *Service) CheckReady(ctx context.Context, indentID string) error {
	indent, err := s.indents.Get(ctx, nil, indentID)
	if err != nil {
		return err
	}
	if !indent.HasPositiveLine() {
		return reconcile.NewError(reconcile.KindInvalidInput, "lines", "indent %s has no line with a positive quantity", indentID)
	}
	return nil
}

// ============================================================================
// LINES
// ============================================================================

// AddLine appends a line to an unprocessed indent. A packaging warning is
// returned together with the persisted line.
func (s *Service) AddLine(ctx context.Context, indentID string, input LineInput) (*models.IndentLine, error) {
	var (
		line    models.IndentLine
		warning error
	)
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.editableIndent(ctx, tx, indentID); err != nil {
			return err
		}
		editor, err := s.editor(ctx, tx)
		if err != nil {
			return err
		}

		var msg string
		line, msg, err = s.buildLine(editor, input)
		if err != nil {
			return err
		}
		if msg != "" {
			warning = reconcile.NewError(reconcile.KindMissingConfiguration, "sku", "%s", msg)
		}
		line.IndentID = indentID
		return s.indents.AddLine(ctx, tx, &line)
	})
	if err != nil {
		return nil, err
	}
	return &line, warning
}

// SetSKU changes a line's SKU and repackages it.
func (s *Service) SetSKU(ctx context.Context, lineID, sku string) (*models.IndentLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.IndentLineEditor, l models.IndentLine) (models.IndentLine, error) {
		return e.SetSKU(l, sku)
	})
}

// SetRequestedQty changes a line's requested quantity and repackages it.
func (s *Service) SetRequestedQty(ctx context.Context, lineID string, qty decimal.Decimal) (*models.IndentLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.IndentLineEditor, l models.IndentLine) (models.IndentLine, error) {
		return e.SetRequestedQty(l, qty)
	})
}

// SetDifference records a line's shortfall and recomputes its actual
// quantity.
func (s *Service) SetDifference(ctx context.Context, lineID string, difference decimal.Decimal) (*models.IndentLine, error) {
	return s.editLine(ctx, lineID, func(e *reconcile.IndentLineEditor, l models.IndentLine) (models.IndentLine, error) {
		return e.SetDifference(l, difference)
	})
}

// DeleteLine removes a line from an unprocessed indent.
func (s *Service) DeleteLine(ctx context.Context, lineID string) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		line, err := s.indents.GetLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if _, err := s.editableIndent(ctx, tx, line.IndentID); err != nil {
			return err
		}
		return s.indents.DeleteLine(ctx, tx, lineID)
	})
}

// editLine loads a line, applies edit and persists the result. Warnings are
// persisted and returned; any other error leaves the stored line unchanged.
func (s *Service) editLine(ctx context.Context, lineID string, edit func(*reconcile.IndentLineEditor, models.IndentLine) (models.IndentLine, error)) (*models.IndentLine, error) {
	var (
		updated models.IndentLine
		warning error
	)
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		line, err := s.indents.GetLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if _, err := s.editableIndent(ctx, tx, line.IndentID); err != nil {
			return err
		}
		editor, err := s.editor(ctx, tx)
		if err != nil {
			return err
		}

		updated, err = edit(editor, *line)
		if err != nil {
			if !reconcile.IsWarning(err) {
				return err
			}
			warning = err
		}
		return s.indents.UpdateLine(ctx, tx, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, warning
}

func (s *Service) buildLine(editor *reconcile.IndentLineEditor, input LineInput) (models.IndentLine, string, error) {
	if input.SKU == "" {
		return models.IndentLine{}, "", reconcile.NewError(reconcile.KindInvalidInput, "sku", "sku is required")
	}
	line := models.IndentLine{ID: s.idGenerator.NewID()}

	var warning string
	line, err := editor.SetSKU(line, input.SKU)
	if err != nil {
		if !reconcile.IsWarning(err) {
			return line, "", err
		}
		warning = err.Error()
	}
	line, err = editor.SetRequestedQty(line, input.RequestedQty)
	if err != nil {
		if !reconcile.IsWarning(err) {
			return line, "", err
		}
		if warning == "" {
			warning = err.Error()
		}
	}
	if !input.Difference.IsZero() {
		line, err = editor.SetDifference(line, input.Difference)
		if err != nil {
			return line, "", err
		}
	}
	return line, warning, nil
}

func (s *Service) editor(ctx context.Context, tx *sql.Tx) (*reconcile.IndentLineEditor, error) {
	cat, err := s.catalog.Snapshot(ctx, tx)
	if err != nil {
		return nil, err
	}
	return reconcile.NewIndentLineEditor(reconcile.NewConverter(cat)), nil
}

// editableIndent loads an indent that may still be edited. Once a sweep has
// processed an indent its lines are frozen.
func (s *Service) editableIndent(ctx context.Context, tx *sql.Tx, id string) (*models.Indent, error) {
	indent, err := s.indents.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if indent.Status.IsTerminal() {
		return nil, reconcile.NewError(reconcile.KindProtectedRecord, "status", "indent %s is %s and can no longer be edited", id, indent.Status)
	}
	return indent, nil
}

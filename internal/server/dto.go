package server

import (
	"time"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Quantities travel as decimal strings so no precision is lost in JSON.

const timeLayout = time.RFC3339

type ConvertRequest struct {
	SKU      string `json:"sku" minLength:"1"`
	Quantity string `json:"quantity" example:"100"`
}

type PackagingResponse struct {
	SKU       string `json:"sku"`
	Quantity  string `json:"quantity"`
	Capacity  int    `json:"capacity"`
	Crates    int64  `json:"crates"`
	Loose     string `json:"loose"`
	ActualQty string `json:"actual_qty"`
}

type DifferenceRequest struct {
	RequestedQty string `json:"requested_qty" example:"100"`
	Difference   string `json:"difference" example:"10"`
}

type DifferenceResponse struct {
	RequestedQty string `json:"requested_qty"`
	Difference   string `json:"difference"`
	ActualQty    string `json:"actual_qty"`
}

type IssueLineDTO struct {
	ID                string `json:"id,omitempty"`
	Idx               int    `json:"idx,omitempty"`
	ItemCode          string `json:"item_code"`
	UOM               string `json:"uom,omitempty"`
	StockUOM          string `json:"stock_uom,omitempty"`
	ConversionFactor  string `json:"conversion_factor,omitempty"`
	Qty               string `json:"qty,omitempty"`
	StockQty          string `json:"stock_qty,omitempty"`
	BelongsToDelivery bool   `json:"belongs_to_delivery"`
	DeliveredQty      string `json:"delivered_qty"`
	MissingQty        string `json:"missing_qty,omitempty"`
	DamagedQty        string `json:"damaged_qty,omitempty"`
	ExcessQty         string `json:"excess_qty,omitempty"`
}

type ValidateLineRequest struct {
	Line         IssueLineDTO `json:"line"`
	ChangedField string       `json:"changed_field" enum:"missing_qty,damaged_qty,excess_qty,qty,uom,item_code,conversion_factor"`
	Prior        string       `json:"prior,omitempty"`
}

type ViolationDTO struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type ValidateLineResponse struct {
	Line      IssueLineDTO  `json:"line"`
	Violation *ViolationDTO `json:"violation,omitempty"`
}

type IndentLineDTO struct {
	ID                string `json:"id"`
	Idx               int    `json:"idx"`
	SKU               string `json:"sku"`
	UOM               string `json:"uom,omitempty"`
	RequestedQty      string `json:"requested_qty"`
	PackagingCapacity *int   `json:"packaging_capacity,omitempty"`
	Crates            int64  `json:"crates"`
	Loose             string `json:"loose"`
	Difference        string `json:"difference"`
	ActualQty         string `json:"actual_qty"`
}

type IndentDTO struct {
	ID             string          `json:"id"`
	Route          string          `json:"route"`
	Date           string          `json:"date"`
	Facility       string          `json:"facility,omitempty"`
	Status         string          `json:"status"`
	IsAdjusted     bool            `json:"is_adjusted"`
	SourceIndentID *string         `json:"source_indent_id,omitempty"`
	Lines          []IndentLineDTO `json:"lines"`
}

type IndentLineRequest struct {
	SKU          string `json:"sku" minLength:"1"`
	RequestedQty string `json:"requested_qty" example:"100"`
	Difference   string `json:"difference,omitempty" example:"0"`
}

type CreateIndentRequest struct {
	Route    string              `json:"route" minLength:"1"`
	Date     string              `json:"date" doc:"YYYY-MM-DD" example:"2026-03-14"`
	Facility string              `json:"facility,omitempty"`
	Lines    []IndentLineRequest `json:"lines,omitempty"`
}

type CreateIndentResponse struct {
	Indent   IndentDTO `json:"indent"`
	Warnings []string  `json:"warnings,omitempty"`
}

type SetIndentFieldRequest struct {
	Field string `json:"field" enum:"sku,requested_qty,difference"`
	Value string `json:"value"`
}

type IndentLineResponse struct {
	Line    IndentLineDTO `json:"line"`
	Warning string        `json:"warning,omitempty"`
}

type PrePopulateResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

type ReadinessResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

type DeliveryNoteDTO struct {
	ID    string `json:"id"`
	Route string `json:"route"`
	Date  string `json:"date"`
}

type OpenIssueNoteRequest struct {
	DeliveryNoteID string `json:"delivery_note_id" minLength:"1"`
}

type IssueNoteDTO struct {
	ID             string         `json:"id"`
	DeliveryNoteID string         `json:"delivery_note_id"`
	Status         string         `json:"status"`
	CreatedAt      string         `json:"created_at"`
	SubmittedAt    string         `json:"submitted_at,omitempty"`
	Lines          []IssueLineDTO `json:"lines"`
}

type AddIssueLineRequest struct {
	ItemCode   string `json:"item_code" minLength:"1"`
	UOM        string `json:"uom,omitempty"`
	Qty        string `json:"qty" example:"2"`
	ExcessQty  string `json:"excess_qty,omitempty"`
	DamagedQty string `json:"damaged_qty,omitempty"`
}

type SetIssueFieldRequest struct {
	Field string `json:"field" enum:"item_code,uom,qty,conversion_factor,missing_qty,damaged_qty,excess_qty"`
	Value string `json:"value"`
}

type IssueLineResponse struct {
	Line      IssueLineDTO  `json:"line"`
	Violation *ViolationDTO `json:"violation,omitempty"`
}

type StockMovementDTO struct {
	ID        string `json:"id"`
	ItemCode  string `json:"item_code"`
	Quantity  string `json:"quantity"`
	Target    string `json:"target"`
	CreatedAt string `json:"created_at"`
}

type SubmitResponse struct {
	NoteID    string             `json:"note_id"`
	Movements []StockMovementDTO `json:"movements"`
}

type ItemDTO struct {
	SKU               string            `json:"sku"`
	Name              string            `json:"name,omitempty"`
	StockUOM          string            `json:"stock_uom"`
	PackagingCapacity *int              `json:"packaging_capacity,omitempty"`
	Conversions       map[string]string `json:"conversions,omitempty"`
}

type SaveItemRequest struct {
	Name              string            `json:"name,omitempty"`
	StockUOM          string            `json:"stock_uom" minLength:"1"`
	PackagingCapacity *int              `json:"packaging_capacity,omitempty" minimum:"1"`
	Conversions       map[string]string `json:"conversions,omitempty" doc:"UOM to stock-unit factor"`
}

type SweepOutcomeDTO struct {
	IndentID         string   `json:"indent_id"`
	Route            string   `json:"route"`
	Date             string   `json:"date"`
	Status           string   `json:"status"`
	Message          string   `json:"message,omitempty"`
	AdjustedIndentID string   `json:"adjusted_indent_id,omitempty"`
	ShortfallLines   int      `json:"shortfall_lines"`
	Warnings         []string `json:"warnings,omitempty"`
}

type SweepDTO struct {
	RunID            string            `json:"run_id"`
	StartedAt        string            `json:"started_at"`
	FinishedAt       string            `json:"finished_at,omitempty"`
	Processed        int               `json:"processed"`
	Created          int               `json:"created"`
	WithShortfall    int               `json:"with_shortfall"`
	WithoutShortfall int               `json:"without_shortfall"`
	AlreadyAdjusted  int               `json:"already_adjusted"`
	Errors           int               `json:"errors"`
	Details          []SweepOutcomeDTO `json:"details"`
}

func issueLineDTO(l models.DeliveryIssueLine) IssueLineDTO {
	out := IssueLineDTO{
		ID:                l.ID,
		Idx:               l.Idx,
		ItemCode:          l.ItemCode,
		UOM:               l.UOM,
		StockUOM:          l.StockUOM,
		BelongsToDelivery: l.BelongsToDelivery,
		DeliveredQty:      l.DeliveredQty.String(),
		MissingQty:        l.MissingQty.String(),
		DamagedQty:        l.DamagedQty.String(),
		ExcessQty:         l.ExcessQty.String(),
	}
	if l.ID != "" {
		out.ConversionFactor = l.ConversionFactor.String()
		out.Qty = l.Qty.String()
		out.StockQty = l.StockQty.String()
	}
	return out
}

func indentDTO(ind *models.Indent) IndentDTO {
	out := IndentDTO{
		ID:             ind.ID,
		Route:          ind.Route,
		Date:           util.FormatDate(ind.Date),
		Facility:       ind.Facility,
		Status:         ind.Status.String(),
		IsAdjusted:     ind.IsAdjusted,
		SourceIndentID: ind.SourceIndentID,
		Lines:          make([]IndentLineDTO, 0, len(ind.Lines)),
	}
	for _, l := range ind.Lines {
		out.Lines = append(out.Lines, indentLineDTO(l))
	}
	return out
}

func indentLineDTO(l models.IndentLine) IndentLineDTO {
	return IndentLineDTO{
		ID:                l.ID,
		Idx:               l.Idx,
		SKU:               l.SKU,
		UOM:               l.UOM,
		RequestedQty:      l.RequestedQty.String(),
		PackagingCapacity: l.PackagingCapacity,
		Crates:            l.Crates,
		Loose:             l.Loose.String(),
		Difference:        l.Difference.String(),
		ActualQty:         l.ActualQty.String(),
	}
}

func sweepDTO(s *models.SweepSummary) SweepDTO {
	out := SweepDTO{
		RunID:            s.RunID,
		StartedAt:        s.StartedAt.Format(timeLayout),
		Processed:        s.Processed,
		Created:          s.Created,
		WithShortfall:    s.WithShortfall,
		WithoutShortfall: s.WithoutShortfall,
		AlreadyAdjusted:  s.AlreadyAdjusted,
		Errors:           s.Errors,
		Details:          make([]SweepOutcomeDTO, 0, len(s.Details)),
	}
	if !s.FinishedAt.IsZero() {
		out.FinishedAt = s.FinishedAt.Format(timeLayout)
	}
	for _, d := range s.Details {
		out.Details = append(out.Details, SweepOutcomeDTO{
			IndentID:         d.IndentID,
			Route:            d.Route,
			Date:             d.Date,
			Status:           d.Status.String(),
			Message:          d.Message,
			AdjustedIndentID: d.AdjustedIndentID,
			ShortfallLines:   d.ShortfallLines,
			Warnings:         d.Warnings,
		})
	}
	return out
}

func issueNoteDTO(n *models.DeliveryIssueNote) IssueNoteDTO {
	out := IssueNoteDTO{
		ID:             n.ID,
		DeliveryNoteID: n.DeliveryNoteID,
		Status:         n.Status.String(),
		CreatedAt:      n.CreatedAt.Format(timeLayout),
		Lines:          make([]IssueLineDTO, 0, len(n.Lines)),
	}
	if n.SubmittedAt != nil {
		out.SubmittedAt = n.SubmittedAt.Format(timeLayout)
	}
	for _, l := range n.Lines {
		out.Lines = append(out.Lines, issueLineDTO(l))
	}
	return out
}

func movementDTOs(ms []*models.StockMovement) []StockMovementDTO {
	out := make([]StockMovementDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, StockMovementDTO{
			ID:        m.ID,
			ItemCode:  m.ItemCode,
			Quantity:  m.Quantity.String(),
			Target:    string(m.Target),
			CreatedAt: m.CreatedAt.Format(timeLayout),
		})
	}
	return out
}

func itemDTO(it *models.Item) ItemDTO {
	out := ItemDTO{
		SKU:               it.SKU,
		Name:              it.Name,
		StockUOM:          it.StockUOM,
		PackagingCapacity: it.PackagingCapacity,
	}
	if len(it.Conversions) > 0 {
		out.Conversions = make(map[string]string, len(it.Conversions))
		for _, c := range it.Conversions {
			out.Conversions[c.UOM] = c.Factor.String()
		}
	}
	return out
}

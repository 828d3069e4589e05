package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/report"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/services/deliveryissues"
	"github.com/indentrecon/indentrecon/internal/services/indents"
	"github.com/indentrecon/indentrecon/internal/services/shortfall"
	"github.com/indentrecon/indentrecon/internal/util"
)

type idPath struct {
	ID string `path:"id"`
}

// pathID canonicalises a record ID taken from the URL.
func pathID(s string) (string, error) {
	id, err := util.ParseID(s)
	if err != nil {
		return "", reconcile.NewError(reconcile.KindInvalidInput, "id", "%q is not a valid id", s)
	}
	return id, nil
}

// violationDTO reports a rule outcome that did not stop the edit.
func violationDTO(err error) (*ViolationDTO, error) {
	if err == nil {
		return nil, nil
	}
	var re *reconcile.Error
	if !errors.As(err, &re) {
		return nil, err
	}
	return &ViolationDTO{Kind: re.Kind.String(), Field: re.Field, Message: re.Message}, nil
}

func warningText(err error) string {
	if err == nil {
		return ""
	}
	var re *reconcile.Error
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

func lineInput(r IndentLineRequest) (indents.LineInput, error) {
	qty, err := parseQty("requested_qty", r.RequestedQty)
	if err != nil {
		return indents.LineInput{}, err
	}
	diff, err := parseQty("difference", r.Difference)
	if err != nil {
		return indents.LineInput{}, err
	}
	return indents.LineInput{SKU: r.SKU, RequestedQty: qty, Difference: diff}, nil
}

func registerIndentEditing(api huma.API, svc *indents.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-indent",
		Method:        http.MethodPost,
		Path:          "/indents",
		Summary:       "Create an unprocessed indent",
		Description:   "Lines are packaged from the item master. SKUs without packaging are kept as loose units and listed in warnings.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateIndentRequest `json:"body"`
	}) (*struct {
		Body CreateIndentResponse `json:"body"`
	}, error) {
		date, err := util.ParseDate(input.Body.Date)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD", nil)
		}
		in := indents.CreateIndentInput{Route: input.Body.Route, Date: date, Facility: input.Body.Facility}
		for _, l := range input.Body.Lines {
			li, err := lineInput(l)
			if err != nil {
				return nil, handleError(err)
			}
			in.Lines = append(in.Lines, li)
		}
		res, err := svc.CreateIndent(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateIndentResponse `json:"body"`
		}{Body: CreateIndentResponse{Indent: indentDTO(res.Indent), Warnings: res.Warnings}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-indent-line",
		Method:        http.MethodPost,
		Path:          "/indents/{id}/lines",
		Summary:       "Append a line to an unprocessed indent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body IndentLineRequest `json:"body"`
	}) (*struct {
		Body IndentLineResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		li, err := lineInput(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		line, err := svc.AddLine(ctx, id, li)
		if line == nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IndentLineResponse `json:"body"`
		}{Body: IndentLineResponse{Line: indentLineDTO(*line), Warning: warningText(err)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prepopulate-indent",
		Method:      http.MethodPost,
		Path:        "/indents/{id}/prepopulate",
		Summary:     "Add a zero-quantity line for every catalogued item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body PrePopulateResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := svc.PrePopulate(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PrePopulateResponse `json:"body"`
		}{Body: PrePopulateResponse{Added: res.Added, Skipped: res.Skipped}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "indent-readiness",
		Method:      http.MethodGet,
		Path:        "/indents/{id}/readiness",
		Summary:     "Report whether an indent can be submitted",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body ReadinessResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ReadinessResponse{Ready: true}
		if err := svc.CheckReady(ctx, id); err != nil {
			if !errors.Is(err, reconcile.ErrInvalidInput) {
				return nil, handleError(err)
			}
			resp = ReadinessResponse{Reason: warningText(err)}
		}
		return &struct {
			Body ReadinessResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-indent-line",
		Method:      http.MethodPatch,
		Path:        "/indent-lines/{id}",
		Summary:     "Change one field of an indent line",
		Description: "The line is repackaged after every edit. A missing packaging configuration is returned as a warning next to the saved line.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body SetIndentFieldRequest `json:"body"`
	}) (*struct {
		Body IndentLineResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		var line *models.IndentLine
		switch input.Body.Field {
		case "sku":
			line, err = svc.SetSKU(ctx, id, input.Body.Value)
		default:
			var qty decimal.Decimal
			if qty, err = parseQty(input.Body.Field, input.Body.Value); err != nil {
				return nil, handleError(err)
			}
			if input.Body.Field == "difference" {
				line, err = svc.SetDifference(ctx, id, qty)
			} else {
				line, err = svc.SetRequestedQty(ctx, id, qty)
			}
		}
		if line == nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IndentLineResponse `json:"body"`
		}{Body: IndentLineResponse{Line: indentLineDTO(*line), Warning: warningText(err)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-indent-line",
		Method:        http.MethodDelete,
		Path:          "/indent-lines/{id}",
		Summary:       "Delete a line from an unprocessed indent",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := svc.DeleteLine(ctx, id); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerIssueEditing(api huma.API, issues *deliveryissues.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-delivery-notes",
		Method:      http.MethodGet,
		Path:        "/delivery-notes",
		Summary:     "List delivery notes an issue note can be raised against",
	}, func(ctx context.Context, input *struct {
		Route string `query:"route"`
		Limit int    `query:"limit" minimum:"1" maximum:"200" default:"50"`
	}) (*struct {
		Body []DeliveryNoteDTO `json:"body"`
	}, error) {
		notes, err := issues.ListDeliveries(ctx, input.Route, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]DeliveryNoteDTO, 0, len(notes))
		for _, n := range notes {
			out = append(out, DeliveryNoteDTO{ID: n.ID, Route: n.Route, Date: util.FormatDate(n.Date)})
		}
		return &struct {
			Body []DeliveryNoteDTO `json:"body"`
		}{Body: out}, nil
	})

	type noteOutput struct {
		Body IssueNoteDTO `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "open-issue-note",
		Method:        http.MethodPost,
		Path:          "/delivery-issue-notes",
		Summary:       "Open a draft issue note against a delivery",
		Description:   "One line is generated for every delivered item.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body OpenIssueNoteRequest `json:"body"`
	}) (*noteOutput, error) {
		id, err := pathID(input.Body.DeliveryNoteID)
		if err != nil {
			return nil, handleError(err)
		}
		note, err := issues.Open(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &noteOutput{Body: issueNoteDTO(note)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue-note",
		Method:      http.MethodGet,
		Path:        "/delivery-issue-notes/{id}",
		Summary:     "Get an issue note with its lines",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*noteOutput, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		note, err := issues.GetNote(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &noteOutput{Body: issueNoteDTO(note)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "regenerate-issue-note",
		Method:      http.MethodPost,
		Path:        "/delivery-issue-notes/{id}/regenerate",
		Summary:     "Rebuild the delivered lines of a draft issue note",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*noteOutput, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		note, err := issues.Regenerate(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &noteOutput{Body: issueNoteDTO(note)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-issue-line",
		Method:        http.MethodPost,
		Path:          "/delivery-issue-notes/{id}/lines",
		Summary:       "Add a freestanding line for an item outside the delivery",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body AddIssueLineRequest `json:"body"`
	}) (*struct {
		Body IssueLineResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		in := deliveryissues.AddLineInput{ItemCode: input.Body.ItemCode, UOM: input.Body.UOM}
		if in.Qty, err = parseQty("qty", input.Body.Qty); err != nil {
			return nil, handleError(err)
		}
		if in.ExcessQty, err = parseQty("excess_qty", input.Body.ExcessQty); err != nil {
			return nil, handleError(err)
		}
		if in.DamagedQty, err = parseQty("damaged_qty", input.Body.DamagedQty); err != nil {
			return nil, handleError(err)
		}
		line, err := issues.AddLine(ctx, id, in)
		if line == nil {
			return nil, handleError(err)
		}
		v, verr := violationDTO(err)
		if verr != nil {
			return nil, handleError(verr)
		}
		return &struct {
			Body IssueLineResponse `json:"body"`
		}{Body: IssueLineResponse{Line: issueLineDTO(*line), Violation: v}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-issue-line",
		Method:      http.MethodPatch,
		Path:        "/delivery-issue-lines/{id}",
		Summary:     "Change one field of a delivery issue line",
		Description: "Corrective rule violations are corrected in place and saved. The violation is reported next to the saved line.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body SetIssueFieldRequest `json:"body"`
	}) (*struct {
		Body IssueLineResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		line, err := issues.SetField(ctx, id, reconcile.DeliveryField(input.Body.Field), input.Body.Value)
		if line == nil {
			return nil, handleError(err)
		}
		v, verr := violationDTO(err)
		if verr != nil {
			return nil, handleError(verr)
		}
		return &struct {
			Body IssueLineResponse `json:"body"`
		}{Body: IssueLineResponse{Line: issueLineDTO(*line), Violation: v}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-issue-note",
		Method:      http.MethodPost,
		Path:        "/delivery-issue-notes/{id}/submit",
		Summary:     "Submit an issue note and book its stock movements",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := issues.Submit(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{NoteID: res.NoteID, Movements: movementDTOs(res.Movements)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stock-movements",
		Method:      http.MethodGet,
		Path:        "/delivery-issue-notes/{id}/movements",
		Summary:     "List the stock movements booked by a submitted note",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body []StockMovementDTO `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		ms, err := issues.StockMovements(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StockMovementDTO `json:"body"`
		}{Body: movementDTOs(ms)}, nil
	})
}

func registerItems(api huma.API, cat *catalog.Service) {
	type itemOutput struct {
		Body ItemDTO `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "save-item",
		Method:      http.MethodPut,
		Path:        "/items/{sku}",
		Summary:     "Create or replace an item with its packaging and UOM conversions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		SKU  string          `path:"sku"`
		Body SaveItemRequest `json:"body"`
	}) (*itemOutput, error) {
		in := catalog.ItemInput{
			SKU:               input.SKU,
			Name:              input.Body.Name,
			StockUOM:          input.Body.StockUOM,
			PackagingCapacity: input.Body.PackagingCapacity,
		}
		if len(input.Body.Conversions) > 0 {
			in.Conversions = make(map[string]decimal.Decimal, len(input.Body.Conversions))
			for uom, raw := range input.Body.Conversions {
				f, err := parseQty("conversions", raw)
				if err != nil {
					return nil, handleError(err)
				}
				in.Conversions[uom] = f
			}
		}
		item, err := cat.SaveItem(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: itemDTO(item)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{sku}",
		Summary:     "Get an item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SKU string `path:"sku"`
	}) (*itemOutput, error) {
		item, err := cat.GetItem(ctx, input.SKU)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: itemDTO(item)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List items",
	}, func(ctx context.Context, input *struct {
		Page     int `query:"page" minimum:"1" default:"1"`
		PageSize int `query:"page_size" minimum:"1" maximum:"100" default:"25"`
	}) (*struct {
		Body []ItemDTO `json:"body"`
	}, error) {
		list, err := cat.ListItems(ctx, models.Pagination{Page: input.Page, PageSize: input.PageSize})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ItemDTO, 0, len(list.Items))
		for _, it := range list.Items {
			out = append(out, itemDTO(it))
		}
		return &struct {
			Body []ItemDTO `json:"body"`
		}{Body: out}, nil
	})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func registerSweepReport(api huma.API, sweeps *shortfall.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-sweep-report",
		Method:      http.MethodGet,
		Path:        "/sweeps/{id}/report",
		Summary:     "Download a sweep run as an xlsx workbook",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		summary, err := sweeps.GetRun(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := report.WriteSweepReport(&buf, summary); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        xlsxContentType,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", "sweep-"+id+".xlsx"),
			Body:               buf.Bytes(),
		}, nil
	})
}

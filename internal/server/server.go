// Package server exposes the reconciliation operations over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/metrics"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/services/deliveryissues"
	"github.com/indentrecon/indentrecon/internal/services/indents"
	"github.com/indentrecon/indentrecon/internal/services/shortfall"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Config for the HTTP API handler.
type Config struct {
	DB      *database.DB
	Catalog *catalog.Service
	Indents *indents.Service
	Issues  *deliveryissues.Service
	Sweeps  *shortfall.Service
	// Metrics is optional. When set it is served at MetricsPath.
	Metrics     *metrics.Registry
	MetricsPath string
	BasePath    string
	Version     string
	Logger      *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"quantity_exceeded"`
	Message string         `json:"message" example:"missing_qty + damaged_qty exceeds delivered_qty + excess_qty"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope for every non-2xx response.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the reconciliation API.
func New(cfg Config) (http.Handler, error) {
	if cfg.DB == nil || cfg.Catalog == nil || cfg.Indents == nil || cfg.Issues == nil || cfg.Sweeps == nil {
		return nil, errors.New("server: database and all services are required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, cfg.Metrics.Handler())
	}

	hcfg := huma.DefaultConfig("Indent Reconciliation API", cfg.Version)
	hcfg.OpenAPIPath = basePath + "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group, cfg.DB)
	registerConversions(group, cfg.Catalog)
	registerDeliveryIssues(group, cfg.Issues)
	registerIssueEditing(group, cfg.Issues)
	registerIndents(group, cfg.Indents)
	registerIndentEditing(group, cfg.Indents)
	registerItems(group, cfg.Catalog)
	registerSweeps(group, cfg.Sweeps)
	registerSweepReport(group, cfg.Sweeps)

	return router, nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var re *reconcile.Error
	if errors.As(err, &re) {
		details := map[string]any{"kind": re.Kind.String()}
		if re.Field != "" {
			details["field"] = re.Field
		}
		return newAPIError(statusForKind(re.Kind), codeForKind(re.Kind), re.Error(), details)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func statusForKind(k reconcile.Kind) int {
	switch k {
	case reconcile.KindInvalidInput:
		return http.StatusBadRequest
	case reconcile.KindMissingConfiguration:
		return http.StatusUnprocessableEntity
	case reconcile.KindOwnershipViolation, reconcile.KindQuantityExceeded, reconcile.KindDuplicateProcessing:
		return http.StatusConflict
	case reconcile.KindProtectedRecord:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// codeForKind turns QuantityExceeded into quantity_exceeded.
func codeForKind(k reconcile.Kind) string {
	var b strings.Builder
	for i, r := range k.String() {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// parseQty reads a decimal quantity. An empty string is zero.
func parseQty(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, reconcile.NewError(reconcile.KindInvalidInput, field, "not a number: %q", s)
	}
	return d, nil
}

func registerHealth(api huma.API, db *database.DB) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := db.HealthCheck(ctx); err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerConversions(api huma.API, cat *catalog.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "convert",
		Method:      http.MethodPost,
		Path:        "/convert",
		Summary:     "Break a quantity into crates and loose units",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ConvertRequest `json:"body"`
	}) (*struct {
		Body PackagingResponse `json:"body"`
	}, error) {
		qty, err := parseQty("quantity", input.Body.Quantity)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := cat.Convert(ctx, input.Body.SKU, qty)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PackagingResponse `json:"body"`
		}{Body: PackagingResponse{
			SKU:       input.Body.SKU,
			Quantity:  qty.String(),
			Capacity:  p.Capacity,
			Crates:    p.Crates,
			Loose:     p.Loose.String(),
			ActualQty: p.ActualQty.String(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-difference",
		Method:      http.MethodPost,
		Path:        "/difference",
		Summary:     "Apply an observed difference to a requested quantity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DifferenceRequest `json:"body"`
	}) (*struct {
		Body DifferenceResponse `json:"body"`
	}, error) {
		requested, err := parseQty("requested_qty", input.Body.RequestedQty)
		if err != nil {
			return nil, handleError(err)
		}
		if requested.IsNegative() {
			return nil, handleError(reconcile.NewError(reconcile.KindInvalidInput, "requested_qty", "must not be negative"))
		}
		diff, err := parseQty("difference", input.Body.Difference)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DifferenceResponse `json:"body"`
		}{Body: DifferenceResponse{
			RequestedQty: requested.String(),
			Difference:   diff.String(),
			ActualQty:    reconcile.ApplyDifference(requested, diff).String(),
		}}, nil
	})
}

func registerDeliveryIssues(api huma.API, issues *deliveryissues.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-issue-line",
		Method:      http.MethodPost,
		Path:        "/delivery-issue-lines/validate",
		Summary:     "Validate a delivery issue line after an edit",
		Description: "Returns the line as it should be stored. A rule violation is reported alongside the corrected line.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ValidateLineRequest `json:"body"`
	}) (*struct {
		Body ValidateLineResponse `json:"body"`
	}, error) {
		line, err := issueLineFromDTO(input.Body.Line)
		if err != nil {
			return nil, handleError(err)
		}
		prior, err := parseQty("prior", input.Body.Prior)
		if err != nil {
			return nil, handleError(err)
		}
		change := reconcile.Change{Field: reconcile.DeliveryField(input.Body.ChangedField), Prior: prior}
		out, verr := issues.ValidateLine(line, change)
		resp := ValidateLineResponse{Line: issueLineDTO(out)}
		if verr != nil {
			var re *reconcile.Error
			if !errors.As(verr, &re) {
				return nil, handleError(verr)
			}
			resp.Violation = &ViolationDTO{Kind: re.Kind.String(), Field: re.Field, Message: re.Message}
		}
		return &struct {
			Body ValidateLineResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-issue-line",
		Method:        http.MethodDelete,
		Path:          "/delivery-issue-lines/{id}",
		Summary:       "Delete a delivery issue line",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := issues.DeleteLine(ctx, id); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func issueLineFromDTO(d IssueLineDTO) (models.DeliveryIssueLine, error) {
	line := models.DeliveryIssueLine{ItemCode: d.ItemCode, BelongsToDelivery: d.BelongsToDelivery}
	var err error
	if line.DeliveredQty, err = parseQty("delivered_qty", d.DeliveredQty); err != nil {
		return line, err
	}
	if line.MissingQty, err = parseQty("missing_qty", d.MissingQty); err != nil {
		return line, err
	}
	if line.DamagedQty, err = parseQty("damaged_qty", d.DamagedQty); err != nil {
		return line, err
	}
	if line.ExcessQty, err = parseQty("excess_qty", d.ExcessQty); err != nil {
		return line, err
	}
	return line, nil
}

func registerIndents(api huma.API, svc *indents.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-indents",
		Method:      http.MethodGet,
		Path:        "/indents",
		Summary:     "List indents",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"UNPROCESSED,PROCESSED_NO_ACTION,PROCESSED"`
		Route    string `query:"route"`
		Date     string `query:"date" doc:"YYYY-MM-DD"`
		Adjusted bool   `query:"include_adjusted"`
		Page     int    `query:"page" minimum:"1" default:"1"`
		PageSize int    `query:"page_size" minimum:"1" maximum:"100" default:"25"`
	}) (*struct {
		Body []IndentDTO `json:"body"`
	}, error) {
		filter := models.IndentFilter{
			Status:          models.IndentStatus(input.Status),
			Route:           input.Route,
			IncludeAdjusted: input.Adjusted,
		}
		if input.Date != "" {
			d, err := util.ParseDate(input.Date)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD", nil)
			}
			filter.Date = &d
		}
		list, err := svc.ListIndents(ctx, filter, models.Pagination{Page: input.Page, PageSize: input.PageSize})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]IndentDTO, 0, len(list.Indents))
		for _, ind := range list.Indents {
			out = append(out, indentDTO(ind))
		}
		return &struct {
			Body []IndentDTO `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-indent",
		Method:      http.MethodGet,
		Path:        "/indents/{id}",
		Summary:     "Get an indent with its lines",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body IndentDTO `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		ind, err := svc.GetIndent(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IndentDTO `json:"body"`
		}{Body: indentDTO(ind)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-adjusted-indent",
		Method:      http.MethodGet,
		Path:        "/indents/{id}/adjusted",
		Summary:     "Get the adjusted indent derived from a source indent",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body IndentDTO `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		ind, err := svc.GetAdjustedFor(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IndentDTO `json:"body"`
		}{Body: indentDTO(ind)}, nil
	})
}

func registerSweeps(api huma.API, sweeps *shortfall.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/sweeps",
		Summary:     "Run the shortfall sweep",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepDTO `json:"body"`
	}, error) {
		summary, err := sweeps.RunSweep(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepDTO `json:"body"`
		}{Body: sweepDTO(summary)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sweeps",
		Method:      http.MethodGet,
		Path:        "/sweeps",
		Summary:     "List recent sweep runs",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"1" maximum:"200" default:"20"`
	}) (*struct {
		Body []SweepDTO `json:"body"`
	}, error) {
		runs, err := sweeps.ListRuns(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]SweepDTO, 0, len(runs))
		for _, r := range runs {
			out = append(out, sweepDTO(r))
		}
		return &struct {
			Body []SweepDTO `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sweep",
		Method:      http.MethodGet,
		Path:        "/sweeps/{id}",
		Summary:     "Get a sweep run with its per-indent outcomes",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body SweepDTO `json:"body"`
	}, error) {
		id, err := pathID(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		summary, err := sweeps.GetRun(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepDTO `json:"body"`
		}{Body: sweepDTO(summary)}, nil
	})
}

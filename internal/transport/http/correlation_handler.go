package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "placepulse/internal/errors"
	"placepulse/internal/index"
	"placepulse/internal/middleware"
	"placepulse/internal/services"
)

// CorrelationHandler handles significance analysis runs and table reads
type CorrelationHandler struct {
	service      *services.CorrelationService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *middleware.ValidationMiddleware
}

// NewCorrelationHandler creates a new correlation handler
func NewCorrelationHandler(service *services.CorrelationService, logger *slog.Logger) *CorrelationHandler {
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &CorrelationHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "correlation")),
		errorHandler: errorHandler,
		validate:     middleware.NewValidationMiddleware(logger, errorHandler),
	}
}

// RegisterRoutes registers the correlation routes
func (h *CorrelationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/correlation/run", middleware.CycleTraceHandler("correlation", h.PostRun))
	r.Get("/significance", h.GetSignificance)
}

// PostRun handles POST /api/v1/correlation/run
func (h *CorrelationHandler) PostRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.service.RunCycle(ctx)
	if err != nil {
		middleware.RecordSystemError(ctx, "cycle_failure", "correlation")
		h.logger.ErrorContext(ctx, "correlation cycle failed",
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, report)
}

type significanceQuery struct {
	Lag string `json:"lag" validate:"omitempty,lag"`
}

// GetSignificance handles GET /api/v1/significance?lag=7d
func (h *CorrelationHandler) GetSignificance(w http.ResponseWriter, r *http.Request) {
	q := significanceQuery{Lag: r.URL.Query().Get("lag")}
	if err := h.validate.ValidateStruct(&q); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	rows, updatedAt := h.service.Table()
	if q.Lag != "" {
		filtered := make([]index.FeatureSignificance, 0, len(rows))
		for _, row := range rows {
			if row.Lag.String() == q.Lag {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	render.JSON(w, r, map[string]interface{}{
		"updated_at": updatedAt,
		"rows":       rows,
	})
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "placepulse/internal/errors"
	"placepulse/internal/middleware"
	"placepulse/internal/services"
)

// EstimateHandler handles estimation HTTP requests
type EstimateHandler struct {
	service      *services.EstimationService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
}

// NewEstimateHandler creates a new estimate handler
func NewEstimateHandler(service *services.EstimationService, logger *slog.Logger) *EstimateHandler {
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &EstimateHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "estimate")),
		errorHandler: errorHandler,
		validate:     middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
	}
}

// RegisterRoutes registers the estimation routes
func (h *EstimateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/estimate", func(r chi.Router) {
		r.Get("/", h.GetEstimate)
		r.Get("/listing", h.GetListing)
	})
}

type estimateQuery struct {
	Keyword string `json:"keyword" validate:"required,keyword"`
	Rank    int    `json:"rank" validate:"required,min=1"`
}

type listingQuery struct {
	Keyword string `json:"keyword" validate:"required,keyword"`
	MaxRank int    `json:"max_rank" validate:"min=1,lte=300"`
}

// GetEstimate handles GET /api/v1/estimate?keyword=...&rank=N
func (h *EstimateHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := estimateQuery{Keyword: r.URL.Query().Get("keyword")}
	rank, ok := h.query.ValidateInt(w, r, "rank", 1, 300, 0)
	if !ok {
		return
	}
	q.Rank = rank
	if err := h.validate.ValidateStruct(&q); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	estimate, err := h.service.Estimate(ctx, q.Keyword, q.Rank)
	if err != nil {
		h.logger.WarnContext(ctx, "estimate failed",
			slog.String("keyword", q.Keyword),
			slog.Int("rank", q.Rank),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if estimate.Stale {
		w.Header().Set("X-Estimate-Stale", "true")
	}
	render.JSON(w, r, estimate)
}

// GetListing handles GET /api/v1/estimate/listing?keyword=...&max_rank=N
func (h *EstimateHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := listingQuery{Keyword: r.URL.Query().Get("keyword")}
	maxRank, ok := h.query.ValidateInt(w, r, "max_rank", 1, 300, 20)
	if !ok {
		return
	}
	q.MaxRank = maxRank
	if err := h.validate.ValidateStruct(&q); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	estimates, err := h.service.EstimateListing(ctx, q.Keyword, q.MaxRank)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"keyword":   q.Keyword,
		"max_rank":  q.MaxRank,
		"estimates": estimates,
	})
}

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "placepulse/internal/errors"
	"placepulse/internal/index"
	"placepulse/internal/middleware"
	"placepulse/internal/services"
)

// SimulationHandler handles what-if simulation HTTP requests
type SimulationHandler struct {
	service      *services.SimulationService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *middleware.ValidationMiddleware
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(service *services.SimulationService, logger *slog.Logger) *SimulationHandler {
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &SimulationHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "simulation")),
		errorHandler: errorHandler,
		validate:     middleware.NewValidationMiddleware(logger, errorHandler),
	}
}

// RegisterRoutes registers the simulation routes
func (h *SimulationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/simulate", func(r chi.Router) {
		r.Post("/forward", h.PostForward)
		r.Post("/inverse", h.PostInverse)
	})
}

type forwardRequest struct {
	Keyword  string                    `json:"keyword" validate:"required,keyword"`
	EntityID string                    `json:"entity_id" validate:"required"`
	Deltas   map[index.Feature]float64 `json:"deltas" validate:"required,min=1"`
}

// PostForward handles POST /api/v1/simulate/forward
func (h *SimulationHandler) PostForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Forward(ctx, services.ForwardRequest{
		Keyword:  req.Keyword,
		EntityID: req.EntityID,
		Deltas:   req.Deltas,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

type inverseRequest struct {
	Keyword     string `json:"keyword" validate:"required,keyword"`
	CurrentRank int    `json:"current_rank" validate:"required,min=1"`
	TargetRank  int    `json:"target_rank"`
}

// PostInverse handles POST /api/v1/simulate/inverse
func (h *SimulationHandler) PostInverse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req inverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Inverse(ctx, req.Keyword, req.CurrentRank, req.TargetRank)
	if err != nil {
		h.logger.WarnContext(ctx, "inverse simulation failed",
			slog.String("keyword", req.Keyword),
			slog.Int("current_rank", req.CurrentRank),
			slog.Int("target_rank", req.TargetRank),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

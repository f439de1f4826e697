package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "placepulse/internal/errors"
	"placepulse/internal/index"
	"placepulse/internal/middleware"
	"placepulse/internal/services"
)

// ActivityHandler handles activity declarations and their resolution
type ActivityHandler struct {
	service      *services.ActivityService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *middleware.ValidationMiddleware
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(service *services.ActivityService, logger *slog.Logger) *ActivityHandler {
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &ActivityHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "activity")),
		errorHandler: errorHandler,
		validate:     middleware.NewValidationMiddleware(logger, errorHandler),
	}
}

// RegisterRoutes registers the activity routes
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Route("/activity", func(r chi.Router) {
		r.Post("/", h.PostActivity)
		r.Post("/resolve", h.PostResolve)
		r.Get("/", h.ListActivities)
		r.Get("/{id}", h.GetActivity)
	})
}

type activityRequest struct {
	Keyword      string                `json:"keyword" validate:"required,keyword"`
	EntityID     string                `json:"entity_id" validate:"required"`
	ActivityDate string                `json:"activity_date" validate:"omitempty,iso8601"`
	Added        map[index.Feature]int `json:"added" validate:"required,min=1"`
}

// PostActivity handles POST /api/v1/activity
func (h *ActivityHandler) PostActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	activityDate := time.Now().UTC()
	if req.ActivityDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ActivityDate)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusBadRequest,
				"INVALID_PARAMETER",
				"activity_date must be formatted as YYYY-MM-DD",
			))
			return
		}
		activityDate = parsed
	}

	entry, err := h.service.Submit(ctx, req.Keyword, req.EntityID, activityDate, req.Added)
	if err != nil {
		h.logger.WarnContext(ctx, "activity submission failed",
			slog.String("keyword", req.Keyword),
			slog.String("entity_id", req.EntityID),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

// PostResolve handles POST /api/v1/activity/resolve
func (h *ActivityHandler) PostResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.ResolvePending(ctx, time.Now().UTC())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

// ListActivities handles GET /api/v1/activity
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	entries := h.service.All()
	render.JSON(w, r, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// GetActivity handles GET /api/v1/activity/{id}
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.service.Get(id)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusNotFound,
			"ACTIVITY_NOT_FOUND",
			"no activity entry with the given id",
		))
		return
	}

	render.JSON(w, r, entry)
}

package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "placepulse/internal/errors"
	"placepulse/internal/index"
	"placepulse/internal/middleware"
	"placepulse/internal/services"
)

// CalibrationHandler handles calibration runs and parameter reads
type CalibrationHandler struct {
	service      *services.CalibrationService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *middleware.ValidationMiddleware
}

// NewCalibrationHandler creates a new calibration handler
func NewCalibrationHandler(service *services.CalibrationService, logger *slog.Logger) *CalibrationHandler {
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &CalibrationHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "calibration")),
		errorHandler: errorHandler,
		validate:     middleware.NewValidationMiddleware(logger, errorHandler),
	}
}

// RegisterRoutes registers the calibration routes
func (h *CalibrationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/calibration/run", middleware.CycleTraceHandler("calibration", h.PostRun))
	r.Route("/parameters", func(r chi.Router) {
		r.Get("/", h.ListParameters)
		r.Get("/global", h.GetGlobalModel)
		r.Get("/{keyword}", h.GetParameters)
	})
}

type calibrationRunRequest struct {
	Keyword string `json:"keyword,omitempty" validate:"omitempty,keyword"`
}

// PostRun handles POST /api/v1/calibration/run. An empty body or an empty
// keyword runs the full cycle; a keyword scopes the run to that keyword.
func (h *CalibrationHandler) PostRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req calibrationRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if req.Keyword != "" {
		params, version, err := h.service.CalibrateKeyword(ctx, req.Keyword)
		if err != nil && !errors.Is(err, index.ErrFitRejected) && !errors.Is(err, index.ErrInsufficientData) {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		resp := map[string]interface{}{
			"keyword":    req.Keyword,
			"status":     params.Status,
			"version":    version,
			"parameters": params,
		}
		if err != nil {
			resp["reason"] = err.Error()
		}
		render.JSON(w, r, resp)
		return
	}

	result, err := h.service.RunCycle(ctx)
	if err != nil {
		middleware.RecordSystemError(ctx, "cycle_failure", "calibration")
		h.logger.ErrorContext(ctx, "calibration cycle failed",
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, result)
}

// ListParameters handles GET /api/v1/parameters
func (h *CalibrationHandler) ListParameters(w http.ResponseWriter, r *http.Request) {
	all := h.service.AllParameters()
	render.JSON(w, r, map[string]interface{}{
		"count":    len(all),
		"keywords": all,
	})
}

// GetParameters handles GET /api/v1/parameters/{keyword}
func (h *CalibrationHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	keyword := chi.URLParam(r, "keyword")

	params, version := h.service.Parameters(keyword)
	if params.Status == index.StatusUncalibrated && version == 0 {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusNotFound,
			"KEYWORD_NOT_FOUND",
			"no parameters stored for keyword",
		))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"version":    version,
		"parameters": params,
	})
}

// GetGlobalModel handles GET /api/v1/parameters/global
func (h *CalibrationHandler) GetGlobalModel(w http.ResponseWriter, r *http.Request) {
	model, version := h.service.GlobalModel()
	render.JSON(w, r, map[string]interface{}{
		"version": version,
		"model":   model,
	})
}

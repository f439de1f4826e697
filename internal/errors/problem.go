package errors

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// CalibrationDetails provides additional context for calibration errors
type CalibrationDetails struct {
	Keyword          string     `json:"keyword,omitempty"`
	Status           string     `json:"status,omitempty"`
	SampleCount      int        `json:"sample_count,omitempty"`
	RequiredSamples  int        `json:"required_samples,omitempty"`
	FitQuality       float64    `json:"fit_quality,omitempty"`
	LastCalibratedAt *time.Time `json:"last_calibrated_at,omitempty"`
}

// NewNotCalibratedProblem creates a problem for a keyword without an accepted fit
func NewNotCalibratedProblem(details *CalibrationDetails, instance, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusUnprocessableEntity,
		TypeNotCalibrated,
		"Keyword Not Calibrated",
		"This keyword has no accepted calibration yet. Ingest more observations and run a calibration cycle.",
		instance,
	)
	if details != nil {
		problem.WithExtension("calibration", details)
	}
	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}

// NewOracleUnavailableProblem creates a problem for oracle outages.
// The response carries the breaker state so callers can tell a fast-fail
// from an exhausted retry run.
func NewOracleUnavailableProblem(breakerState, instance, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusServiceUnavailable,
		TypeOracleDown,
		"Ranking Oracle Unavailable",
		"The ranking oracle could not be reached. Locally calibrated estimates remain available.",
		instance,
	).WithExtension("breaker_state", breakerState).
		WithExtension("retry_after", 30)
	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}

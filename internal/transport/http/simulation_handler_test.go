package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placepulse/internal/index"
)

func seedSignificantBlogRow(engine *testEngine, coefficient float64) {
	p := 0.001
	engine.table.ReplaceAll([]index.FeatureSignificance{
		{
			Feature:     index.FeatureBlogReview,
			Lag:         index.LagSevenDays,
			Correlation: 0.92,
			PValue:      &p,
			Significant: true,
			Coefficient: coefficient,
			SampleSize:  40,
		},
	}, time.Now().UTC())
}

func TestSimulationHandler_Forward(t *testing.T) {
	engine := newTestEngine()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	engine.seedObservation(t, "강남 미용실", "entity-a", day, 1, 0.90)
	engine.seedObservation(t, "강남 미용실", "entity-b", day, 2, 0.80)
	engine.seedObservation(t, "강남 미용실", "entity-c", day, 3, 0.70)
	seedSignificantBlogRow(engine, 0.05)
	router := engine.router()

	body := `{"keyword":"강남 미용실","entity_id":"entity-c","deltas":{"blog_review":3}}`
	req := httptest.NewRequest("POST", "/api/v1/simulate/forward", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, rec.Body.String())

	var result index.ForwardResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.CurrentRank)
	assert.Equal(t, 2, result.PredictedRank)
	assert.InDelta(t, 0.15, result.TotalEffect, 1e-9)
}

func TestSimulationHandler_ForwardValidation(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"keyword":`},
		{"missing keyword", `{"entity_id":"entity-a","deltas":{"blog_review":1}}`},
		{"missing entity", `{"keyword":"강남 미용실","deltas":{"blog_review":1}}`},
		{"empty deltas", `{"keyword":"강남 미용실","entity_id":"entity-a","deltas":{}}`},
		{"overlong keyword", `{"keyword":"` + strings.Repeat("가", 101) + `","entity_id":"entity-a","deltas":{"blog_review":1}}`},
		{"blank keyword", `{"keyword":"   ","entity_id":"entity-a","deltas":{"blog_review":1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/simulate/forward", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, 400, rec.Code)
		})
	}
}

func TestSimulationHandler_InverseValidation(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	cases := []struct {
		name string
		body string
	}{
		{"missing keyword", `{"current_rank":5,"target_rank":2}`},
		{"zero current rank", `{"keyword":"강남 미용실","current_rank":0,"target_rank":1}`},
		{"negative current rank", `{"keyword":"강남 미용실","current_rank":-3,"target_rank":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/simulate/inverse", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, 400, rec.Code)

			var problem map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, "/errors/validation", problem["type"])
		})
	}
}

func TestSimulationHandler_Inverse(t *testing.T) {
	engine := newTestEngine()
	engine.seedCalibrated("강남 미용실")
	day := time.Now().UTC().Truncate(24 * time.Hour)
	for rank := 1; rank <= 10; rank++ {
		engine.seedObservation(t, "강남 미용실", "entity-"+string(rune('a'+rank-1)), day, rank, 0.7-0.02*float64(rank))
	}
	router := engine.router()

	body := `{"keyword":"강남 미용실","current_rank":5,"target_rank":2}`
	req := httptest.NewRequest("POST", "/api/v1/simulate/inverse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, rec.Body.String())

	var result index.InverseResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 5, result.CurrentRank)
	assert.Equal(t, 2, result.TargetRank)
	assert.Greater(t, result.Index2Delta, 0.0)
	assert.True(t, result.Achievable)
}

func TestSimulationHandler_InverseInvalidTarget(t *testing.T) {
	engine := newTestEngine()
	engine.seedCalibrated("강남 미용실")
	router := engine.router()

	body := `{"keyword":"강남 미용실","current_rank":5,"target_rank":9}`
	req := httptest.NewRequest("POST", "/api/v1/simulate/inverse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 422, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/simulation/invalid-target", problem["type"])
}

func TestSimulationHandler_InverseNotCalibrated(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	body := `{"keyword":"처음 보는 키워드","current_rank":5,"target_rank":2}`
	req := httptest.NewRequest("POST", "/api/v1/simulate/inverse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 422, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/calibration/not-calibrated", problem["type"])
}

package http

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placepulse/internal/index"
)

func seedResolvedBlogActivities(engine *testEngine, n int) {
	base := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -10)
	for i := 0; i < n; i++ {
		added := i + 1
		noise := 0.0001
		if i%2 == 1 {
			noise = -0.0001
		}
		entry := index.ActivityEntry{
			ID:           fmt.Sprintf("activity-%03d", i),
			Keyword:      "강남 미용실",
			EntityID:     "entity-a",
			ActivityDate: base,
			Added:        map[index.Feature]int{index.FeatureBlogReview: added},
			Baseline:     index.ResolutionSnapshot{Rank: 5, Index3: 0.5, ResolvedAt: base},
			CreatedAt:    base,
		}
		entry.ResolutionD1 = &index.ResolutionSnapshot{
			Rank:       4,
			Index3:     0.5 + 0.002*float64(added) + noise,
			ResolvedAt: base.AddDate(0, 0, 1),
		}
		engine.activities.Create(entry)
	}
}

func TestCorrelationHandler_RunCycle(t *testing.T) {
	engine := newTestEngine()
	seedResolvedBlogActivities(engine, 12)
	router := engine.router()

	req := httptest.NewRequest("POST", "/api/v1/correlation/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, rec.Body.String())

	var report index.AnalysisReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Rows, len(index.AllFeatures)*len(index.AnalyzedLags))
	assert.NotEmpty(t, report.Recommendation)
}

func TestCorrelationHandler_GetSignificance(t *testing.T) {
	engine := newTestEngine()
	seedResolvedBlogActivities(engine, 12)
	router := engine.router()

	runReq := httptest.NewRequest("POST", "/api/v1/correlation/run", nil)
	runRec := httptest.NewRecorder()
	router.ServeHTTP(runRec, runReq)
	require.Equal(t, 200, runRec.Code)

	req := httptest.NewRequest("GET", "/api/v1/significance", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var body struct {
		UpdatedAt time.Time                   `json:"updated_at"`
		Rows      []index.FeatureSignificance `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.UpdatedAt.IsZero())
	assert.Len(t, body.Rows, len(index.AllFeatures)*len(index.AnalyzedLags))

	found := false
	for _, row := range body.Rows {
		if row.Feature == index.FeatureBlogReview && row.Lag == index.LagOneDay {
			found = true
			assert.True(t, row.Significant)
		}
	}
	assert.True(t, found)
}

func TestCorrelationHandler_SignificanceLagFilter(t *testing.T) {
	engine := newTestEngine()
	seedResolvedBlogActivities(engine, 12)
	router := engine.router()

	runReq := httptest.NewRequest("POST", "/api/v1/correlation/run", nil)
	runRec := httptest.NewRecorder()
	router.ServeHTTP(runRec, runReq)
	require.Equal(t, 200, runRec.Code)

	req := httptest.NewRequest("GET", "/api/v1/significance?lag=1d", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var body struct {
		Rows []index.FeatureSignificance `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, len(index.AllFeatures))
	for _, row := range body.Rows {
		assert.Equal(t, index.LagOneDay, row.Lag)
	}

	// The same-day window is never analyzed, so its filter comes back empty.
	req = httptest.NewRequest("GET", "/api/v1/significance?lag=0d", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body.Rows = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Rows)
}

func TestCorrelationHandler_SignificanceRejectsUnknownLag(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	req := httptest.NewRequest("GET", "/api/v1/significance?lag=3d", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/validation", problem["type"])
}

func TestCorrelationHandler_EmptySignificanceTable(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	req := httptest.NewRequest("GET", "/api/v1/significance", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var body struct {
		Rows []index.FeatureSignificance `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Rows)
}

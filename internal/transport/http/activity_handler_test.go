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

func TestActivityHandler_SubmitAndGet(t *testing.T) {
	engine := newTestEngine()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	engine.seedObservation(t, "강남 미용실", "entity-a", day, 5, 0.52)
	router := engine.router()

	body := `{"keyword":"강남 미용실","entity_id":"entity-a","activity_date":"` +
		day.Format("2006-01-02") + `","added":{"blog_review":3,"save":50}}`
	req := httptest.NewRequest("POST", "/api/v1/activity", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code, rec.Body.String())

	var entry index.ActivityEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 5, entry.Baseline.Rank)

	getReq := httptest.NewRequest("GET", "/api/v1/activity/"+entry.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)

	require.Equal(t, 200, getRec.Code)
	var fetched index.ActivityEntry
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, entry.ID, fetched.ID)
}

func TestActivityHandler_SubmitWithoutBaseline(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	body := `{"keyword":"강남 미용실","entity_id":"entity-x","added":{"blog_review":1}}`
	req := httptest.NewRequest("POST", "/api/v1/activity", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code, "an entity never observed cannot anchor an activity")
}

func TestActivityHandler_SubmitValidation(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"keyword"`},
		{"missing entity", `{"keyword":"강남 미용실","added":{"blog_review":1}}`},
		{"empty added", `{"keyword":"강남 미용실","entity_id":"entity-a","added":{}}`},
		{"bad date", `{"keyword":"강남 미용실","entity_id":"entity-a","activity_date":"not-a-date","added":{"blog_review":1}}`},
		{"overlong keyword", `{"keyword":"` + strings.Repeat("가", 101) + `","entity_id":"entity-a","added":{"blog_review":1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/activity", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, 400, rec.Code)
		})
	}
}

func TestActivityHandler_GetUnknown(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	req := httptest.NewRequest("GET", "/api/v1/activity/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestActivityHandler_Resolve(t *testing.T) {
	engine := newTestEngine()
	activityDay := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -8)
	engine.seedObservation(t, "강남 미용실", "entity-a", activityDay, 5, 0.52)
	engine.seedObservation(t, "강남 미용실", "entity-a", activityDay.AddDate(0, 0, 1), 4, 0.55)
	engine.seedObservation(t, "강남 미용실", "entity-a", activityDay.AddDate(0, 0, 7), 3, 0.58)
	router := engine.router()

	body := `{"keyword":"강남 미용실","entity_id":"entity-a","activity_date":"` +
		activityDay.Format("2006-01-02") + `","added":{"blog_review":3}}`
	req := httptest.NewRequest("POST", "/api/v1/activity", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, 201, rec.Code)

	resolveReq := httptest.NewRequest("POST", "/api/v1/activity/resolve", nil)
	resolveRec := httptest.NewRecorder()
	router.ServeHTTP(resolveRec, resolveReq)

	require.Equal(t, 200, resolveRec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resolveRec.Body.Bytes(), &result))
	assert.Equal(t, float64(2), result["resolved"])
	assert.Equal(t, float64(0), result["missing"])
}

func TestActivityHandler_List(t *testing.T) {
	engine := newTestEngine()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	engine.seedObservation(t, "강남 미용실", "entity-a", day, 5, 0.52)
	router := engine.router()

	for i := 0; i < 3; i++ {
		body := `{"keyword":"강남 미용실","entity_id":"entity-a","added":{"visit_review":2}}`
		req := httptest.NewRequest("POST", "/api/v1/activity", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, 201, rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/activity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
}

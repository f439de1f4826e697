package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(baseURL string) ClientConfig {
	cfg := DefaultClientConfig(baseURL)
	cfg.RetryBackoff = time.Millisecond
	cfg.RequestsPerSec = 1000
	cfg.Burst = 1000
	return cfg
}

func listingPayload(keyword string) QueryResult {
	return QueryResult{
		Keyword: keyword,
		Listings: []Listing{
			{EntityID: "p1", EntityName: "카페 한잔", Rank: 1, Index1: 0.41, Index2: 0.549, Index3: 0.62, BlogCount: 120, VisitCount: 340, SaveCount: 55},
			{EntityID: "p2", EntityName: "카페 두잔", Rank: 2, Index1: 0.39, Index2: 0.548, Index3: 0.60, BlogCount: 80, VisitCount: 300, SaveCount: 43},
		},
		FetchedAt: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
	}
}

func TestClient_FetchDecodesListing(t *testing.T) {
	var gotKeyword string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKeyword = r.URL.Query().Get("keyword")
		require.NoError(t, json.NewEncoder(w).Encode(listingPayload(gotKeyword)))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(srv.URL), nil)
	result, err := c.Fetch(context.Background(), "강남 카페")
	require.NoError(t, err)

	assert.Equal(t, "강남 카페", gotKeyword)
	assert.Equal(t, "강남 카페", result.Keyword)
	require.Len(t, result.Listings, 2)
	assert.Equal(t, 1, result.Listings[0].Rank)
	assert.InDelta(t, 0.549, result.Listings[0].Index2, 1e-9)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(listingPayload("강남 카페")))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(srv.URL), nil)
	result, err := c.Fetch(context.Background(), "강남 카페")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, result.Listings, 2)
	assert.Equal(t, BreakerClosed, c.BreakerState())
}

func TestClient_BadQueryIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(fastConfig(srv.URL), nil)
	_, err := c.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrBadQuery)
	assert.Equal(t, int32(1), calls.Load())
	// A rejected query is not an availability failure.
	assert.Equal(t, BreakerClosed, c.BreakerState())
}

func TestClient_ExhaustedRetriesTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.MaxRetries = 1
	cfg.BreakerThreshold = 2
	c := NewClient(cfg, nil)

	_, err := c.Fetch(context.Background(), "강남 카페")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.Fetch(context.Background(), "강남 카페")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, BreakerOpen, c.BreakerState())

	// With the breaker open the client fails fast without touching the server.
	_, err = c.Fetch(context.Background(), "강남 카페")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.RetryBackoff = time.Hour
	c := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, "강남 카페")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

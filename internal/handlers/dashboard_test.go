package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beacon-site/apiserver/config"
	"github.com/beacon-site/apiserver/internal/upstream"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDashboardStack(t *testing.T, upstreamHandler http.HandlerFunc) (http.Handler, *atomic.Int32) {
	t.Helper()

	var upstreamCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		upstreamHandler(w, r)
	}))
	t.Cleanup(server.Close)

	client := upstream.NewClient(config.UpstreamConfig{
		BaseURL:    server.URL,
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
	})

	router := chi.NewRouter()
	router.Route("/dashboard", func(r chi.Router) {
		DashboardRouter(r, client)
	})
	return router, &upstreamCalls
}

func authenticate(req *http.Request, identity Identity) *http.Request {
	ctx := context.WithValue(req.Context(), identityContextKey, identity)
	return req.WithContext(ctx)
}

func TestDashboard_AnonymousRequestMakesNoUpstreamCalls(t *testing.T) {
	t.Parallel()

	router, upstreamCalls := newDashboardStack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeUnauthenticated, body.Code)
	assert.Zero(t, upstreamCalls.Load(), "gate must reject before any side effect")
}

func TestDashboard_SummaryPassesThrough(t *testing.T) {
	t.Parallel()

	router, upstreamCalls := newDashboardStack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/summary", r.URL.Path)
		_, _ = w.Write([]byte(`{"visitors": 10, "signups": 2, "articles": 5, "top_referrer": "news.ycombinator.com"}`))
	})

	req := authenticate(httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil), Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), upstreamCalls.Load())

	var summary upstream.SiteSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 10, summary.Visitors)
	require.NotNil(t, summary.TopReferrer)
	assert.Equal(t, "news.ycombinator.com", *summary.TopReferrer)
}

func TestDashboard_UpstreamClientErrorSurfacesVerbatim(t *testing.T) {
	t.Parallel()

	router, _ := newDashboardStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "summary not available"}`))
	})

	req := authenticate(httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil), Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "summary not available", body.Error)
}

func TestDashboard_UpstreamOutageBecomesBadGateway(t *testing.T) {
	t.Parallel()

	router, upstreamCalls := newDashboardStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	req := authenticate(httptest.NewRequest(http.MethodGet, "/dashboard/articles", nil), Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, int32(2), upstreamCalls.Load(), "maxRetries=1 means 2 attempts")
}

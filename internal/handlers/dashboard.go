package handlers

import (
	"errors"
	"net/http"

	"github.com/beacon-site/apiserver/internal/upstream"
	"github.com/go-chi/chi/v5"
)

// DashboardHandler serves the authenticated dashboard views backed by
// the upstream content service.
type DashboardHandler struct {
	client *upstream.Client
}

// NewDashboardHandler constructs a handler over the upstream client.
func NewDashboardHandler(client *upstream.Client) *DashboardHandler {
	return &DashboardHandler{client: client}
}

// DashboardRouter registers dashboard routes. Everything here requires
// authentication.
func DashboardRouter(r chi.Router, client *upstream.Client) {
	handler := NewDashboardHandler(client)

	r.Use(RequireAuth)
	r.Get("/summary", handler.Summary)
	r.Get("/articles", handler.Articles)
}

// Summary returns the site overview for the dashboard landing view.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.client.SiteSummary(r.Context(), upstreamBearer(r))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Articles returns recent published articles.
func (h *DashboardHandler) Articles(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit)
	articles, err := h.client.Articles(r.Context(), upstreamBearer(r), limit)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

// upstreamBearer forwards the caller's bearer credential as an opaque
// token; the upstream applies its own checks.
func upstreamBearer(r *http.Request) string {
	token, err := bearerToken(r)
	if err != nil {
		return ""
	}
	return token
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError {
		writeError(w, apiErr.StatusCode, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "upstream unavailable")
}

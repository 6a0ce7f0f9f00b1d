package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "actions-api", body["service"])
	assert.Equal(t, "memory", body["storeMode"])
}

func TestOrganizerAuth(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/organizer/overview", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/organizer/overview", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/organizer/overview", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Contains(t, body, "overview")
}

func TestOrganizerAuth_CoversAllRoutes(t *testing.T) {
	h, _ := newTestAPI(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/organizer/events"},
		{http.MethodPost, "/api/organizer/events"},
		{http.MethodGet, "/api/organizer/events/solana-campus-week"},
		{http.MethodPatch, "/api/organizer/events/solana-campus-week"},
		{http.MethodGet, "/api/organizer/events/solana-campus-week/stats"},
		{http.MethodGet, "/api/organizer/events/solana-campus-week/analytics/timeseries"},
		{http.MethodGet, "/api/organizer/events/solana-campus-week/participants"},
		{http.MethodGet, "/api/organizer/events/solana-campus-week/export.csv"},
		{http.MethodGet, "/api/organizer/analytics/retention"},
	}
	for _, route := range paths {
		rec := doRequest(t, h, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

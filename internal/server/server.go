package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nialthony/Campuss-Blink-Pass/internal/logger"
	"github.com/nialthony/Campuss-Blink-Pass/internal/store"
)

type api struct {
	store  store.EventStore
	apiKey string
}

// NewHandler wires every route. Organizer routes sit behind the x-api-key
// check; actions and verifier routes are public.
func NewHandler(st store.EventStore, organizerAPIKey string) http.Handler {
	a := &api{store: st, apiKey: organizerAPIKey}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)

	mux.HandleFunc("GET /api/organizer/overview", a.auth(a.handleOverview))
	mux.HandleFunc("GET /api/organizer/analytics/retention", a.auth(a.handleRetention))
	mux.HandleFunc("GET /api/organizer/events", a.auth(a.handleListEvents))
	mux.HandleFunc("POST /api/organizer/events", a.auth(a.handleCreateEvent))
	mux.HandleFunc("GET /api/organizer/events/{eventId}", a.auth(a.handleGetEvent))
	mux.HandleFunc("PATCH /api/organizer/events/{eventId}", a.auth(a.handleUpdateEvent))
	mux.HandleFunc("GET /api/organizer/events/{eventId}/stats", a.auth(a.handleEventStats))
	mux.HandleFunc("GET /api/organizer/events/{eventId}/analytics/timeseries", a.auth(a.handleTimeseries))
	mux.HandleFunc("GET /api/organizer/events/{eventId}/participants", a.auth(a.handleParticipants))
	mux.HandleFunc("GET /api/organizer/events/{eventId}/export.csv", a.auth(a.handleExportCSV))

	mux.HandleFunc("GET /api/verifier/events", a.handleVerifierEvents)
	mux.HandleFunc("GET /api/verifier/events/{eventId}/wallets/{wallet}", a.handleVerifyWallet)
	mux.HandleFunc("GET /api/verifier/refs/{txRef}", a.handleVerifyTxRef)

	mux.HandleFunc("POST /api/actions/events/{eventId}/register", a.handleRegister)
	mux.HandleFunc("POST /api/actions/events/{eventId}/check-in", a.handleCheckIn)
	mux.HandleFunc("POST /api/actions/events/{eventId}/claim-poap", a.handleClaim)

	return mux
}

func New(addr string, st store.EventStore, organizerAPIKey string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewHandler(st, organizerAPIKey),
	}
}

func (a *api) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != a.apiKey {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next(w, r)
	}
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"service":   "actions-api",
		"storeMode": a.store.Mode(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store sentinels to HTTP statuses; anything else is an
// internal fault and gets logged.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "Event not found")
	case errors.Is(err, store.ErrTxRefNotFound):
		writeError(w, http.StatusNotFound, "txRef not found")
	case errors.Is(err, store.ErrEventExists):
		writeError(w, http.StatusConflict, "Event id already exists")
	default:
		logger.Error("store operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func decodeBody(r *http.Request, into interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(into)
}

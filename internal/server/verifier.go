package server

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nialthony/Campuss-Blink-Pass/internal/logger"
	"github.com/nialthony/Campuss-Blink-Pass/internal/store"
)

// verifierEvent is the trimmed public projection; the check-in secret never
// leaves the organizer API.
type verifierEvent struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	StartAt        string            `json:"startAt"`
	EndAt          string            `json:"endAt"`
	Status         store.EventStatus `json:"status"`
	PoapCollection *string           `json:"poapCollection"`
}

func toVerifierEvent(event store.Event) verifierEvent {
	return verifierEvent{
		ID:             event.ID,
		Name:           event.Name,
		Description:    event.Description,
		StartAt:        event.StartAt.Format(time.RFC3339),
		EndAt:          event.EndAt.Format(time.RFC3339),
		Status:         event.Status,
		PoapCollection: event.PoapCollection,
	}
}

func (a *api) handleVerifierEvents(w http.ResponseWriter, r *http.Request) {
	includeAll := r.URL.Query().Get("status") == "all"

	events, err := a.store.ListEvents()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]verifierEvent, 0, len(events))
	for _, event := range events {
		if !includeAll && event.Status != store.EventStatusPublished {
			continue
		}
		out = append(out, toVerifierEvent(event))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (a *api) handleVerifyWallet(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	wallet := r.PathValue("wallet")

	event, err := a.store.GetEventByID(eventID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if len(wallet) < 32 {
		writeError(w, http.StatusBadRequest, "Invalid wallet pubkey")
		return
	}

	verification, err := a.store.GetWalletVerification(eventID, wallet)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event": map[string]string{
			"id":   event.ID,
			"name": event.Name,
		},
		"verification": verification,
	})
}

func (a *api) handleVerifyTxRef(w http.ResponseWriter, r *http.Request) {
	txRef := r.PathValue("txRef")
	if len(txRef) < 8 {
		writeError(w, http.StatusBadRequest, "Invalid txRef")
		return
	}

	verification, err := a.store.GetTxVerification(txRef)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// A deleted event leaves the ref resolvable with a null event; a storage
	// fault does the same but is worth a trace.
	var eventInfo interface{}
	event, err := a.store.GetEventByID(verification.EventID)
	switch {
	case err == nil:
		eventInfo = map[string]string{
			"id":   event.ID,
			"name": event.Name,
		}
	case !errors.Is(err, store.ErrEventNotFound):
		logger.Error("event lookup for ref failed",
			zap.String("eventId", verification.EventID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verification": verification,
		"event":        eventInfo,
	})
}

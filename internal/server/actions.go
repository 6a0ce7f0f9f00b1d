package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nialthony/Campuss-Blink-Pass/internal/store"
)

type actionBody struct {
	Account string `json:"account"`
	Secret  string `json:"secret"`
}

// buildTxRef derives an opaque reference for one funnel action. The uuid salt
// keeps refs unique even when the same wallet retries an action.
func buildTxRef(eventID, wallet string) string {
	digest := sha256.Sum256([]byte(eventID + ":" + wallet + ":" + uuid.NewString()))
	return "txr_" + hex.EncodeToString(digest[:])[:40]
}

func buildMockMintAddress(eventID, wallet string) string {
	digest := sha256.Sum256([]byte("mint:" + eventID + ":" + wallet + ":" + uuid.NewString()))
	return "mint_" + hex.EncodeToString(digest[:])[:40]
}

func buildCollectionID(eventID string) string {
	digest := sha256.Sum256([]byte("collection:" + eventID + ":" + uuid.NewString()))
	return "col_" + hex.EncodeToString(digest[:])[:40]
}

func (a *api) actionEvent(w http.ResponseWriter, r *http.Request) (*store.Event, *actionBody, bool) {
	event, err := a.store.GetEventByID(r.PathValue("eventId"))
	if err != nil {
		writeStoreError(w, err)
		return nil, nil, false
	}

	var body actionBody
	if err := decodeBody(r, &body); err != nil || len(body.Account) < 32 {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return nil, nil, false
	}

	return event, &body, true
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	event, body, ok := a.actionEvent(w, r)
	if !ok {
		return
	}

	registered, err := a.store.HasRegistration(event.ID, body.Account)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if registered {
		writeError(w, http.StatusConflict, "Wallet already registered for this event")
		return
	}

	txRef := buildTxRef(event.ID, body.Account)
	if err := a.store.AddRegistration(event.ID, body.Account, txRef); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"txRef":   txRef,
		"message": fmt.Sprintf("Registered for %s", event.Name),
	})
}

func (a *api) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	event, body, ok := a.actionEvent(w, r)
	if !ok {
		return
	}

	registered, err := a.store.HasRegistration(event.ID, body.Account)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !registered {
		writeError(w, http.StatusBadRequest, "Wallet is not registered for this event")
		return
	}

	now := time.Now()
	if now.Before(event.StartAt) || now.After(event.EndAt) {
		writeError(w, http.StatusBadRequest, "Check-in window is closed")
		return
	}

	if body.Secret != event.CheckInSecret {
		writeError(w, http.StatusForbidden, "Invalid check-in secret")
		return
	}

	checkedIn, err := a.store.HasCheckin(event.ID, body.Account)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if checkedIn {
		writeError(w, http.StatusConflict, "Wallet already checked in")
		return
	}

	txRef := buildTxRef(event.ID, body.Account)
	if err := a.store.AddCheckin(event.ID, body.Account, txRef); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"txRef":   txRef,
		"message": fmt.Sprintf("Checked in for %s", event.Name),
	})
}

func (a *api) handleClaim(w http.ResponseWriter, r *http.Request) {
	event, body, ok := a.actionEvent(w, r)
	if !ok {
		return
	}

	checkedIn, err := a.store.HasCheckin(event.ID, body.Account)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !checkedIn {
		writeError(w, http.StatusBadRequest, "Wallet has not checked in yet")
		return
	}

	claimed, err := a.store.HasClaim(event.ID, body.Account)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if claimed {
		writeError(w, http.StatusConflict, "POAP already claimed")
		return
	}

	// First claim for an event decides the collection; the catalog CAS makes
	// sure a concurrent first claim observes the same winner.
	collection, err := a.store.SetPoapCollectionIfAbsent(event.ID, buildCollectionID(event.ID))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	txRef := buildTxRef(event.ID, body.Account)
	mintAddress := buildMockMintAddress(event.ID, body.Account)
	if err := a.store.AddClaim(event.ID, body.Account, txRef, &mintAddress); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"txRef":          txRef,
		"mintAddress":    mintAddress,
		"poapCollection": collection,
		"message":        fmt.Sprintf("Claimed POAP for %s", event.Name),
	})
}

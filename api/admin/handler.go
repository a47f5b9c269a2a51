// Package admin exposes the operational HTTP surface: manual polls,
// broadcasts, subscription management and snapshot inspection.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/svitlobot/svitlo/core/store"
	"github.com/svitlobot/svitlo/internal/eventbus"
)

// Bus is the slice of the command bus the handlers need.
type Bus interface {
	Publish(cmd eventbus.Command) bool
}

// NewPollHandler returns an HTTP handler triggering an immediate poll cycle
// via POST /api/admin/poll. Requests must include an Authorization header
// with "Bearer <token>" when token is non-empty.
func NewPollHandler(bus Bus, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cmd := eventbus.NewPollNow()
		if !bus.Publish(cmd) {
			http.Error(w, "command queue full", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": cmd.ID})
	})
}

// NewBroadcastHandler returns an HTTP handler queueing a broadcast via
// POST /api/admin/broadcast.
func NewBroadcastHandler(bus Bus, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Text   string `json:"text"`
			Escape bool   `json:"escape"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}
		cmd := eventbus.NewBroadcast(req.Text, req.Escape)
		if !bus.Publish(cmd) {
			http.Error(w, "command queue full", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": cmd.ID})
	})
}

// NewSubscriptionHandler returns an HTTP handler managing subscriptions via
// POST and DELETE /api/admin/subscriptions.
func NewSubscriptionHandler(subs store.SubscriptionManager, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		var req struct {
			RecipientID string `json:"recipient_id"`
			SourceID    string `json:"source_id"`
			GroupID     string `json:"group_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if req.RecipientID == "" || req.SourceID == "" || req.GroupID == "" {
			http.Error(w, "recipient_id, source_id and group_id are required", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodPost:
			err := subs.Subscribe(r.Context(), req.RecipientID, req.SourceID, req.GroupID)
			if errors.Is(err, store.ErrSubscriptionLimit) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			if err := subs.Unsubscribe(r.Context(), req.RecipientID, req.SourceID, req.GroupID); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// NewSnapshotHandler returns an HTTP handler exposing the stored snapshot
// for one group via GET /api/admin/snapshot?source_id=...&group_id=...
func NewSnapshotHandler(snapshots store.SnapshotStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sourceID := r.URL.Query().Get("source_id")
		groupID := r.URL.Query().Get("group_id")
		if sourceID == "" || groupID == "" {
			http.Error(w, "source_id and group_id are required", http.StatusBadRequest)
			return
		}
		snap, err := snapshots.Get(r.Context(), sourceID, groupID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if snap == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})
}

// NewMux assembles the admin routes on a fresh ServeMux.
func NewMux(bus Bus, subs store.SubscriptionManager, snapshots store.SnapshotStore, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/admin/poll", NewPollHandler(bus, token))
	mux.Handle("/api/admin/broadcast", NewBroadcastHandler(bus, token))
	mux.Handle("/api/admin/subscriptions", NewSubscriptionHandler(subs, token))
	mux.Handle("/api/admin/snapshot", NewSnapshotHandler(snapshots, token))
	return mux
}

func authorized(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

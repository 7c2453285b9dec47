package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/budgetsync/internal/api/middleware"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/syncer"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SyncControl is the operator surface of a syncer.Manager.
type SyncControl interface {
	Status(ctx context.Context) (syncer.Status, error)
	Drain(ctx context.Context) (syncer.DrainResult, error)
	DropHead(ctx context.Context, reason string) (pending.DeadLetter, error)
	DeadLetters(ctx context.Context) ([]pending.DeadLetter, error)
	Requeue(ctx context.Context, deadID string) (pending.Action, error)
}

// SyncHandler handles /api/sync.
type SyncHandler struct {
	sync SyncControl
	log  zerolog.Logger
}

func NewSyncHandler(sync SyncControl, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, log: log}
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.sync.Status(r.Context())
	if err != nil {
		writeErr(w, h.log, err, "Failed to read sync status")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

// Drain handles POST /api/sync/drain. A queue that stops at a failing action
// is reported in the body, not as an HTTP error.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Drain(r.Context())
	body := map[string]interface{}{"result": res}
	if err != nil {
		body["error"] = err.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}

// DropHead handles POST /api/sync/drop-head with an optional {"reason"}.
func (h *SyncHandler) DropHead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "dropped by operator"
	}
	dl, err := h.sync.DropHead(r.Context(), req.Reason)
	if err != nil {
		writeErr(w, h.log, err, "Failed to drop head of queue")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dl)
}

func (h *SyncHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	list, err := h.sync.DeadLetters(r.Context())
	if err != nil {
		writeErr(w, h.log, err, "Failed to list dead letters")
		return
	}
	if list == nil {
		list = []pending.DeadLetter{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deadLetters": list,
		"count":       len(list),
	})
}

// Requeue handles POST /api/sync/dead-letters/{id}/requeue.
func (h *SyncHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	a, err := h.sync.Requeue(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, h.log, err, "Failed to requeue action")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, a)
}

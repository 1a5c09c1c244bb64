package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/storage"
)

// handleDebateStream streams debate progress using Server-Sent Events.
// The client first receives a snapshot of the session so far, then live
// chunk, message, and status events until the debate reaches a terminal
// status or the client disconnects.
func (h *Handler) handleDebateStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.logger.Debug("new debate stream connection", "session", id, "remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	o, live := h.manager.Get(id)
	if !live {
		// Not live; replay the stored record if we have one.
		session, err := h.getSession(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.sendSSEError(w, flusher, "debate not found")
			} else {
				h.sendSSEError(w, flusher, "failed to load debate")
			}
			return
		}
		h.sendSSEEvent(w, flusher, "session", session)
		h.sendSSEEvent(w, flusher, "done", map[string]string{"status": string(session.Status)})
		return
	}

	// Subscribe before snapshotting so no event falls between the two.
	events, unsubscribe := o.Subscribe()
	defer unsubscribe()
	h.sendSSEEvent(w, flusher, "session", o.Session())

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream client disconnected", "session", id)
			return
		case ev, ok := <-events:
			if !ok {
				h.sendSSEEvent(w, flusher, "done", map[string]string{"status": string(o.Session().Status)})
				return
			}
			h.sendSSEEvent(w, flusher, string(ev.Type), ev)
			if ev.Type == engine.EventStatus && ev.Status.Terminal() {
				h.sendSSEEvent(w, flusher, "session", o.Session())
			}
		}
	}
}

// sendSSEEvent sends a server-sent event.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		h.logger.Error("failed to write SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		h.logger.Error("failed to write SSE data", "error", err)
		return
	}
	flusher.Flush()
}

// sendSSEError sends an error event.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	h.sendSSEEvent(w, flusher, "error", map[string]string{"message": message})
}

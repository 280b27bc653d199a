package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// streamStatus serves GET /v1/calls/{id}/events as a server-sent event
// stream. The current persisted status is sent first so a subscriber
// never starts blind, then live transitions follow. Duplicate or
// out-of-order events are filtered server-side as well: status only
// moves forward.
func (rt *Router) streamStatus(w http.ResponseWriter, r *http.Request, id string) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	// Subscribe before reading the snapshot so a transition landing
	// between the two is buffered rather than lost; the rank filter
	// below drops whatever the snapshot already covers.
	events, cancel, err := rt.status.SubscribeStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	call, err := rt.reader.GetByID(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.SSESubscriberOpened()
		defer rt.metrics.SSESubscriberClosed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	current := domain.StatusEvent{
		CallID: call.ID,
		Status: call.Status,
		Error:  call.ErrorMessage,
		At:     call.UpdatedAt,
	}
	if err := writeSSE(w, flusher, current); err != nil {
		return
	}
	if current.Status.IsTerminal() {
		return
	}
	lastRank := current.Status.Rank()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if event.Status.Rank() <= lastRank {
				continue
			}
			lastRank = event.Status.Rank()
			if err := writeSSE(w, flusher, event); err != nil {
				return
			}
			if event.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event domain.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

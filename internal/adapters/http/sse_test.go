package httpadapter

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/infrastructure/status"
)

func readSSEEvents(t *testing.T, body *bufio.Scanner, n int) []domain.StatusEvent {
	t.Helper()
	var events []domain.StatusEvent
	for body.Scan() {
		line := body.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode sse payload %q: %v", line, err)
		}
		events = append(events, event)
		if len(events) == n {
			return events
		}
	}
	t.Fatalf("stream ended after %d events, want %d", len(events), n)
	return nil
}

func TestStreamStatusDeliversTransitions(t *testing.T) {
	hub := status.NewHub()
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {ID: "call-1", OwnerID: "owner-1", Status: domain.StatusPending},
	}}
	server := httptest.NewServer(newTestRouter(reader, hub).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/v1/calls/call-1/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(ownerIDHeader, "owner-1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", got)
	}

	scanner := bufio.NewScanner(res.Body)

	// The currently persisted status arrives first.
	first := readSSEEvents(t, scanner, 1)[0]
	if first.Status != domain.StatusPending {
		t.Fatalf("initial status = %s, want pending", first.Status)
	}

	go func() {
		// Give the handler a moment to register its subscription.
		time.Sleep(50 * time.Millisecond)
		hub.Broadcast(domain.StatusEvent{CallID: "call-1", Status: domain.StatusTranscribing, At: time.Now().UTC()})
		hub.Broadcast(domain.StatusEvent{CallID: "call-1", Status: domain.StatusTranscribing, At: time.Now().UTC()})
		hub.Broadcast(domain.StatusEvent{CallID: "call-1", Status: domain.StatusCompleted, At: time.Now().UTC()})
	}()

	events := readSSEEvents(t, scanner, 2)
	if events[0].Status != domain.StatusTranscribing {
		t.Fatalf("second event = %s, want transcribing", events[0].Status)
	}
	if events[1].Status != domain.StatusCompleted {
		t.Fatalf("third event = %s, want completed (duplicate must be dropped)", events[1].Status)
	}

	// Terminal status closes the stream server-side.
	if scanner.Scan() && strings.HasPrefix(scanner.Text(), "data: ") {
		t.Fatalf("unexpected event after terminal status: %q", scanner.Text())
	}
}

func TestStreamStatusTransitionDuringSnapshotIsNotLost(t *testing.T) {
	hub := status.NewHub()
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {ID: "call-1", OwnerID: "owner-1", Status: domain.StatusPending},
	}}
	// The transition fires while the handler reads the snapshot, after
	// its subscription is already open.
	reader.onGet = func() {
		hub.Broadcast(domain.StatusEvent{CallID: "call-1", Status: domain.StatusTranscribing, At: time.Now().UTC()})
	}
	server := httptest.NewServer(newTestRouter(reader, hub).Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/calls/call-1/events", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()

	scanner := bufio.NewScanner(res.Body)
	events := readSSEEvents(t, scanner, 2)
	if events[0].Status != domain.StatusPending {
		t.Fatalf("initial status = %s, want pending", events[0].Status)
	}
	if events[1].Status != domain.StatusTranscribing {
		t.Fatalf("buffered transition = %s, want transcribing", events[1].Status)
	}
}

func TestStreamStatusTerminalCallClosesImmediately(t *testing.T) {
	hub := status.NewHub()
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {ID: "call-1", OwnerID: "owner-1", Status: domain.StatusFailed, ErrorMessage: "call analysis failed"},
	}}
	server := httptest.NewServer(newTestRouter(reader, hub).Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/calls/call-1/events", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()

	scanner := bufio.NewScanner(res.Body)
	event := readSSEEvents(t, scanner, 1)[0]
	if event.Status != domain.StatusFailed || event.Error == "" {
		t.Fatalf("event = %+v, want failed with error message", event)
	}

	done := make(chan struct{})
	go func() {
		for scanner.Scan() {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after terminal status")
	}
}

func TestStreamStatusUnknownCallReturns404(t *testing.T) {
	handler := newTestRouter(&readerFake{calls: map[string]*domain.Call{}}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/missing/events", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

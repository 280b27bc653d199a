package statusclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

func TestFetchStatusDecodesCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls/call-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Owner-Id") != "owner-1" {
			t.Errorf("missing owner header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"call-1","status":"failed","error_message":"call analysis failed","updated_at":"2026-08-29T10:00:00Z"}`)
	}))
	defer server.Close()

	client := New(server.URL, "owner-1", nil)
	event, err := client.FetchStatus(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if event.Status != domain.StatusFailed || event.Error != "call analysis failed" {
		t.Fatalf("event = %+v", event)
	}
}

func TestFetchStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "owner-1", nil)
	if _, err := client.FetchStatus(context.Background(), "missing"); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("err = %v, want ErrCallNotFound", err)
	}
}

func TestSubscribeStatusStreamsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls/call-1/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, status := range []string{"transcribing", "scoring", "completed"} {
			fmt.Fprintf(w, "data: {\"call_id\":\"call-1\",\"status\":%q}\n\n", status)
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := New(server.URL, "owner-1", nil)
	events, cancel, err := client.SubscribeStatus(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	var got []domain.CallStatus
	for event := range events {
		got = append(got, event.Status)
	}
	want := []domain.CallStatus{domain.StatusTranscribing, domain.StatusScoring, domain.StatusCompleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestSubscribeStatusCancelClosesStream(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	client := New(server.URL, "owner-1", nil)
	events, cancel, err := client.SubscribeStatus(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()
	cancel()

	select {
	case _, open := <-events:
		if open {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSubscribeStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "owner-1", nil)
	if _, _, err := client.SubscribeStatus(context.Background(), "missing"); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("err = %v, want ErrCallNotFound", err)
	}
}

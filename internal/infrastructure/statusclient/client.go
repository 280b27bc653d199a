// Package statusclient consumes the API's status surface: the live
// SSE stream and the point-in-time lookup. It plugs into watch.Watcher
// as its push source and polling fetcher.
package statusclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

const eventBuffer = 8

type Client struct {
	baseURL    string
	ownerID    string
	httpClient *http.Client
}

func New(baseURL, ownerID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		ownerID:    ownerID,
		httpClient: httpClient,
	}
}

// FetchStatus reads the call's current persisted state. Both this
// lookup and the stream report the same canonical status values.
func (c *Client) FetchStatus(ctx context.Context, callID string) (domain.StatusEvent, error) {
	req, err := c.newRequest(ctx, "/v1/calls/"+callID)
	if err != nil {
		return domain.StatusEvent{}, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return domain.StatusEvent{}, fmt.Errorf("fetch call status: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return domain.StatusEvent{}, domain.ErrCallNotFound
	}
	if res.StatusCode != http.StatusOK {
		return domain.StatusEvent{}, fmt.Errorf("fetch call status: unexpected status %s", res.Status)
	}

	var call struct {
		ID           string            `json:"id"`
		Status       domain.CallStatus `json:"status"`
		ErrorMessage string            `json:"error_message"`
		UpdatedAt    time.Time         `json:"updated_at"`
	}
	if err := json.NewDecoder(res.Body).Decode(&call); err != nil {
		return domain.StatusEvent{}, fmt.Errorf("decode call status: %w", err)
	}
	return domain.StatusEvent{
		CallID: call.ID,
		Status: call.Status,
		Error:  call.ErrorMessage,
		At:     call.UpdatedAt,
	}, nil
}

// SubscribeStatus opens the SSE stream for one call. Events arrive on
// the returned channel until the stream ends or cancel is called;
// cancel is idempotent and aborts the underlying request.
func (c *Client) SubscribeStatus(ctx context.Context, callID string) (<-chan domain.StatusEvent, func(), error) {
	streamCtx, stop := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, "/v1/calls/"+callID+"/events")
	if err != nil {
		stop()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.httpClient.Do(req)
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("open status stream: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		stop()
		if res.StatusCode == http.StatusNotFound {
			return nil, nil, domain.ErrCallNotFound
		}
		return nil, nil, fmt.Errorf("open status stream: unexpected status %s", res.Status)
	}

	events := make(chan domain.StatusEvent, eventBuffer)
	go func() {
		defer close(events)
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event domain.StatusEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(stop)
	}
	return events, cancel, nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Owner-Id", c.ownerID)
	return req, nil
}

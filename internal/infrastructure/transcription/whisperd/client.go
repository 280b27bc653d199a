// Package whisperd talks to the speech-to-text sidecar that turns a
// stored recording into diarized speaker turns. The service is treated
// as unreliable; callers go through a circuit breaker.
package whisperd

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/ports"
)

type Client struct {
	baseURL    string
	model      string
	storage    ports.ObjectStorage
	httpClient *http.Client
}

func New(baseURL, model string, storage ports.ObjectStorage, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		storage:    storage,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transcribeResponse struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Segments        []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
		StartMS int64  `json:"start_ms"`
	} `json:"segments"`
}

// Transcribe streams the stored audio to the sidecar and maps its
// diarized segments onto transcript entries ordered by start time.
func (c *Client) Transcribe(ctx context.Context, audioRef string) ([]domain.TranscriptEntry, float64, error) {
	audio, err := c.storage.Open(ctx, audioRef)
	if err != nil {
		return nil, 0, fmt.Errorf("open stored audio: %w", err)
	}
	defer audio.Close()

	var response transcribeResponse
	if err := c.postAudio(ctx, "/v1/transcriptions", audioRef, audio, &response); err != nil {
		return nil, 0, err
	}

	entries := make([]domain.TranscriptEntry, 0, len(response.Segments))
	for _, segment := range response.Segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		entries = append(entries, domain.TranscriptEntry{
			Role:      mapSpeaker(segment.Speaker),
			Content:   text,
			Timestamp: segment.StartMS,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, response.DurationSeconds, nil
}

// mapSpeaker folds the sidecar's speaker labels onto the two roles the
// rubric understands: the coached rep and the simulated prospect.
func mapSpeaker(speaker string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(speaker)) {
	case "user", "rep", "agent", "speaker_0":
		return domain.RoleUser
	default:
		return domain.RoleAssistant
	}
}

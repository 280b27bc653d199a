package domain

import (
	"errors"
	"fmt"
	"time"
)

type CallStatus string

const (
	StatusPending      CallStatus = "pending"
	StatusTranscribing CallStatus = "transcribing"
	StatusScoring      CallStatus = "scoring"
	StatusCompleted    CallStatus = "completed"
	StatusFailed       CallStatus = "failed"
)

// statusRank orders the pipeline stages. Failed sits at the top so a
// consumer comparing ranks never downgrades away from a terminal state.
var statusRank = map[CallStatus]int{
	StatusPending:      0,
	StatusTranscribing: 1,
	StatusScoring:      2,
	StatusCompleted:    3,
	StatusFailed:       3,
}

func (s CallStatus) Rank() int {
	rank, ok := statusRank[s]
	if !ok {
		return -1
	}
	return rank
}

func (s CallStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to
// another. Stages only move forward; failed is reachable from any
// non-terminal state; terminal states never transition again.
func CanTransition(from, to CallStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StatusFailed:
		return true
	case StatusTranscribing:
		return from == StatusPending
	case StatusScoring:
		return from == StatusTranscribing
	case StatusCompleted:
		return from == StatusScoring
	default:
		return false
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one speaker turn. Entries are append-only during
// capture and immutable once attached to a Call.
type TranscriptEntry struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp_ms"`
}

// Call tracks a single uploaded recording through the analysis
// pipeline. Transcript is populated once the call reaches scoring,
// Analysis once it completes, ErrorMessage only when it fails.
type Call struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"owner_id"`
	OriginalFilename string            `json:"original_filename"`
	AudioRef         string            `json:"audio_ref"`
	MimeType         string            `json:"mime_type"`
	SizeBytes        int64             `json:"size_bytes"`
	DurationSeconds  float64           `json:"duration_seconds"`
	ScenarioType     string            `json:"scenario_type,omitempty"`
	Status           CallStatus        `json:"status"`
	Transcript       []TranscriptEntry `json:"transcript,omitempty"`
	Analysis         *ScoringResult    `json:"analysis,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	DeletedAt        *time.Time        `json:"deleted_at,omitempty"`
}

// Validate enforces the status-dependent field invariants. Repositories
// run it on every read so a record can never be observed in a shape its
// status does not allow.
func (c *Call) Validate() error {
	if c.ID == "" {
		return errors.New("call id is empty")
	}
	if c.Status.Rank() < 0 {
		return fmt.Errorf("unknown call status %q", c.Status)
	}
	if len(c.Transcript) > 0 && c.Status.Rank() < StatusScoring.Rank() {
		return fmt.Errorf("transcript present in status %q", c.Status)
	}
	if c.Analysis != nil && c.Status != StatusCompleted {
		return fmt.Errorf("analysis present in status %q", c.Status)
	}
	if c.ErrorMessage != "" && c.Status != StatusFailed {
		return fmt.Errorf("error message present in status %q", c.Status)
	}
	return nil
}

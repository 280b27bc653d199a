package ports

import (
	"context"
	"io"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// StatusUpdate carries the stage-scoped payload attached to a
// transition. Only the fields meaningful for the target status are set.
type StatusUpdate struct {
	Transcript   []domain.TranscriptEntry
	Analysis     *domain.ScoringResult
	ErrorMessage string
}

// CallRepository persists and reads call state.
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.Call, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Call, error)
	UpdateStatus(ctx context.Context, id string, status domain.CallStatus, update StatusUpdate) error
	SoftDelete(ctx context.Context, ownerID, id string) error
}

// ObjectStorage stores uploaded audio.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// MessageQueue hands uploaded calls to the worker pool.
type MessageQueue interface {
	PublishCallUploaded(ctx context.Context, callID string) error
	SubscribeCallUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// Transcriber converts stored audio into speaker turns. Treated as
// unreliable; always invoked through a circuit breaker.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) ([]domain.TranscriptEntry, float64, error)
}

// Scorer analyzes a transcript. In-process and pure.
type Scorer interface {
	Analyze(transcript []domain.TranscriptEntry, durationSeconds float64, scenarioType string) (*domain.ScoringResult, error)
}

// StatusPublisher emits transition events. Best-effort: a publish with
// no consumer is silently dropped and never fails the caller's job.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event domain.StatusEvent) error
}

// StatusSource delivers transition events for one call. The returned
// cancel func is idempotent.
type StatusSource interface {
	SubscribeStatus(ctx context.Context, callID string) (<-chan domain.StatusEvent, func(), error)
}

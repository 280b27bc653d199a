package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/ports"
	"github.com/kirillkom/sales-coach/internal/infrastructure/resilience"
)

// BreakerTranscription is the registry name of the breaker guarding
// the speech-to-text dependency.
const BreakerTranscription = "transcription"

// minScorableEntries is the smallest conversation worth scoring.
// Anything thinner is reported as an insufficient-conversation outcome
// instead of a misleadingly low number.
const minScorableEntries = 2

type ProcessCallUseCase struct {
	repo        ports.CallRepository
	transcriber ports.Transcriber
	scorer      ports.Scorer
	breakers    *resilience.Registry
	publisher   ports.StatusPublisher

	onTransition func(domain.CallStatus)
}

// OnTransition installs an observer invoked after every persisted
// status change. Used for worker metrics; not part of the pipeline.
func (uc *ProcessCallUseCase) OnTransition(fn func(domain.CallStatus)) {
	uc.onTransition = fn
}

func NewProcessCallUseCase(
	repo ports.CallRepository,
	transcriber ports.Transcriber,
	scorer ports.Scorer,
	breakers *resilience.Registry,
	publisher ports.StatusPublisher,
) *ProcessCallUseCase {
	return &ProcessCallUseCase{
		repo:        repo,
		transcriber: transcriber,
		scorer:      scorer,
		breakers:    breakers,
		publisher:   publisher,
	}
}

// ProcessByID drives one call through transcribing and scoring.
// Stages run sequentially; every transition is persisted before its
// status event is published; any stage error moves the call to the
// terminal failed state with a sanitized message. A failed call is
// never reprocessed; recovery is a fresh upload.
func (uc *ProcessCallUseCase) ProcessByID(ctx context.Context, callID string) error {
	call, err := uc.repo.GetByID(ctx, "", callID)
	if err != nil {
		return fmt.Errorf("fetch call by id: %w", err)
	}
	if call.Status != domain.StatusPending {
		slog.Info("call_already_processed", "call_id", callID, "status", call.Status)
		return nil
	}

	if err := uc.transition(ctx, callID, domain.StatusTranscribing, ports.StatusUpdate{}); err != nil {
		return fmt.Errorf("set status=transcribing: %w", err)
	}

	transcript, duration, err := uc.transcribe(ctx, call.AudioRef)
	if err != nil {
		return uc.fail(ctx, callID, err)
	}
	if duration <= 0 {
		duration = call.DurationSeconds
	}

	if len(transcript) < minScorableEntries {
		return uc.fail(ctx, callID, domain.WrapError(domain.ErrInsufficientData, "score call",
			fmt.Errorf("%d transcript entries", len(transcript))))
	}

	if err := uc.transition(ctx, callID, domain.StatusScoring, ports.StatusUpdate{Transcript: transcript}); err != nil {
		return fmt.Errorf("set status=scoring: %w", err)
	}

	// Scoring is in-process and pure, so no breaker guards it.
	analysis, err := uc.scorer.Analyze(transcript, duration, call.ScenarioType)
	if err != nil {
		return uc.fail(ctx, callID, fmt.Errorf("analyze transcript: %w", err))
	}

	if err := uc.transition(ctx, callID, domain.StatusCompleted, ports.StatusUpdate{Analysis: analysis}); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *ProcessCallUseCase) transcribe(ctx context.Context, audioRef string) ([]domain.TranscriptEntry, float64, error) {
	var transcript []domain.TranscriptEntry
	var duration float64

	breaker := uc.breakers.Get(BreakerTranscription)
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		transcript, duration, callErr = uc.transcriber.Transcribe(ctx, audioRef)
		return callErr
	})
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return nil, 0, err
		}
		return nil, 0, domain.WrapError(domain.ErrDependency, "transcribe audio", err)
	}
	return transcript, duration, nil
}

// transition persists the status change first and only then publishes
// the event. Publication is fire-and-forget: a failed or unheard
// publish is logged, never treated as a job failure.
func (uc *ProcessCallUseCase) transition(ctx context.Context, callID string, status domain.CallStatus, update ports.StatusUpdate) error {
	if err := uc.repo.UpdateStatus(ctx, callID, status, update); err != nil {
		return err
	}
	if uc.onTransition != nil {
		uc.onTransition(status)
	}

	event := domain.StatusEvent{
		CallID: callID,
		Status: status,
		Error:  update.ErrorMessage,
		At:     time.Now().UTC(),
	}
	if err := uc.publisher.PublishStatus(ctx, event); err != nil {
		slog.Warn("status_publish_failed", "call_id", callID, "status", status, "error", err)
	}
	return nil
}

func (uc *ProcessCallUseCase) fail(ctx context.Context, callID string, stageErr error) error {
	update := ports.StatusUpdate{ErrorMessage: sanitizeError(stageErr)}
	if failErr := uc.transition(ctx, callID, domain.StatusFailed, update); failErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", stageErr, failErr)
	}
	return stageErr
}

// sanitizeError maps internal stage errors to the short user-facing
// messages stored on a failed call. Raw dependency detail stays in the
// logs only.
func sanitizeError(err error) string {
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return "transcription is temporarily unavailable, please try again later"
	case errors.Is(err, domain.ErrInsufficientData):
		return "the conversation was too short to score; upload a longer recording"
	case errors.Is(err, domain.ErrDependency):
		return "transcription failed for this recording"
	default:
		return "call analysis failed"
	}
}

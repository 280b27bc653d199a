package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/ports"
)

type UploadCallUseCase struct {
	repo    ports.CallRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue

	allowedMediaTypes map[string]struct{}
	maxUploadBytes    int64
}

func NewUploadCallUseCase(
	repo ports.CallRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	allowedMediaTypes []string,
	maxUploadBytes int64,
) *UploadCallUseCase {
	allowed := make(map[string]struct{}, len(allowedMediaTypes))
	for _, mediaType := range allowedMediaTypes {
		allowed[strings.ToLower(strings.TrimSpace(mediaType))] = struct{}{}
	}
	return &UploadCallUseCase{
		repo:              repo,
		storage:           storage,
		queue:             queue,
		allowedMediaTypes: allowed,
		maxUploadBytes:    maxUploadBytes,
	}
}

// Upload validates the recording, stores it, creates the pending call
// record and hands it to the worker pool. Validation failures reject
// the request before any record or file exists.
func (uc *UploadCallUseCase) Upload(ctx context.Context, params ports.UploadParams) (*domain.Call, error) {
	if err := uc.validate(params); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	audioRef := fmt.Sprintf("%s_%s", id, sanitizeFilename(params.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, audioRef, params.Body); err != nil {
		return nil, fmt.Errorf("save audio to object storage: %w", err)
	}

	call := &domain.Call{
		ID:               id,
		OwnerID:          params.OwnerID,
		OriginalFilename: params.Filename,
		AudioRef:         audioRef,
		MimeType:         params.MimeType,
		SizeBytes:        params.SizeBytes,
		ScenarioType:     params.ScenarioType,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := uc.repo.Create(ctx, call); err != nil {
		uc.discardAudio(ctx, audioRef)
		return nil, fmt.Errorf("create call record: %w", err)
	}

	if err := uc.queue.PublishCallUploaded(ctx, call.ID); err != nil {
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	return call, nil
}

func (uc *UploadCallUseCase) validate(params ports.UploadParams) error {
	if strings.TrimSpace(params.OwnerID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("owner id is required"))
	}
	mediaType := strings.ToLower(strings.TrimSpace(params.MimeType))
	if _, ok := uc.allowedMediaTypes[mediaType]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("media type %q is not accepted", params.MimeType))
	}
	if params.SizeBytes <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("empty upload"))
	}
	if params.SizeBytes > uc.maxUploadBytes {
		return domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("file size %d exceeds ceiling %d", params.SizeBytes, uc.maxUploadBytes))
	}
	return nil
}

// discardAudio cleans up the stored file when record creation failed,
// so no orphaned audio survives a half-done upload.
func (uc *UploadCallUseCase) discardAudio(ctx context.Context, audioRef string) {
	if err := uc.storage.Remove(ctx, audioRef); err != nil {
		slog.Warn("orphaned_audio_cleanup_failed", "audio_ref", audioRef, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "recording.bin"
	}
	return base
}

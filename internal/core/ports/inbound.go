package ports

import (
	"context"
	"io"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// CallUploader is the inbound contract for call upload orchestration.
type CallUploader interface {
	Upload(ctx context.Context, params UploadParams) (*domain.Call, error)
}

// UploadParams describes one incoming recording.
type UploadParams struct {
	OwnerID      string
	Filename     string
	MimeType     string
	SizeBytes    int64
	ScenarioType string
	Body         io.Reader
}

// CallProcessor is the inbound contract for asynchronous call analysis.
type CallProcessor interface {
	ProcessByID(ctx context.Context, callID string) error
}

// CallReader is the inbound read model for call state.
type CallReader interface {
	GetByID(ctx context.Context, ownerID, id string) (*domain.Call, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Call, error)
	SoftDelete(ctx context.Context, ownerID, id string) error
}

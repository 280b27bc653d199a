package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/ports"
)

type CallRepository struct {
	db *sql.DB
}

func NewCallRepository(db *sql.DB) *CallRepository {
	return &CallRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CallRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	audio_ref TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	scenario_type TEXT,
	status TEXT NOT NULL,
	transcript JSONB,
	analysis JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_calls_owner ON calls(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO calls (
	id, owner_id, original_filename, audio_ref, mime_type, size_bytes, duration_seconds,
	scenario_type, status, error_message, created_at, updated_at, deleted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		call.ID, call.OwnerID, call.OriginalFilename, call.AudioRef, call.MimeType,
		call.SizeBytes, call.DurationSeconds, call.ScenarioType, string(call.Status),
		call.ErrorMessage, call.CreatedAt, call.UpdatedAt, call.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

const callColumns = `
id, owner_id, original_filename, audio_ref, mime_type, size_bytes, duration_seconds,
scenario_type, status, transcript, analysis, error_message, created_at, updated_at, deleted_at
`

// GetByID reads one live call. An empty ownerID skips the owner filter;
// that path is reserved for the worker, which processes by id alone.
func (r *CallRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = $1 AND deleted_at IS NULL`
	args := []any{id}
	if ownerID != "" {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}

	call, err := scanCall(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCallNotFound, "get call", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get call by id: %w", err)
	}
	if err := call.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call record %s: %w", id, err)
	}
	return call, nil
}

func (r *CallRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Call, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+callColumns+`
FROM calls
WHERE owner_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if err := call.Validate(); err != nil {
			return nil, fmt.Errorf("invalid call record %s: %w", call.ID, err)
		}
		out = append(out, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return out, nil
}

// UpdateStatus persists one transition. The WHERE clause re-checks the
// transition rules in the database so a concurrent or repeated worker
// can never move a call backwards or out of a terminal state.
func (r *CallRepository) UpdateStatus(ctx context.Context, id string, status domain.CallStatus, update ports.StatusUpdate) error {
	transcriptJSON, analysisJSON, err := marshalUpdate(update)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE calls
SET status = $2,
	transcript = COALESCE($3, transcript),
	analysis = COALESCE($4, analysis),
	error_message = $5,
	updated_at = $6
WHERE id = $1
	AND deleted_at IS NULL
	AND status NOT IN ('completed', 'failed')
	AND status = ANY(string_to_array($7, ','))
`, id, string(status), transcriptJSON, analysisJSON, update.ErrorMessage,
		time.Now().UTC(), allowedPredecessors(status))
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update call status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrCallNotFound, "update call status",
			fmt.Errorf("id=%s has no live record eligible for %s", id, status))
	}
	return nil
}

func (r *CallRepository) SoftDelete(ctx context.Context, ownerID, id string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
UPDATE calls
SET deleted_at = $3, updated_at = $3
WHERE owner_id = $1 AND id = $2 AND deleted_at IS NULL
`, ownerID, id, now)
	if err != nil {
		return fmt.Errorf("soft delete call: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete call rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrCallNotFound, "soft delete call", fmt.Errorf("id=%s", id))
	}
	return nil
}

// allowedPredecessors is the comma-joined set of statuses a call may
// hold for the transition to apply, mirroring domain.CanTransition.
func allowedPredecessors(status domain.CallStatus) string {
	switch status {
	case domain.StatusTranscribing:
		return string(domain.StatusPending)
	case domain.StatusScoring:
		return string(domain.StatusTranscribing)
	case domain.StatusCompleted:
		return string(domain.StatusScoring)
	case domain.StatusFailed:
		return strings.Join([]string{
			string(domain.StatusPending),
			string(domain.StatusTranscribing),
			string(domain.StatusScoring),
		}, ",")
	default:
		return ""
	}
}

func marshalUpdate(update ports.StatusUpdate) (transcript, analysis []byte, err error) {
	if update.Transcript != nil {
		transcript, err = json.Marshal(update.Transcript)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal transcript: %w", err)
		}
	}
	if update.Analysis != nil {
		analysis, err = json.Marshal(update.Analysis)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal analysis: %w", err)
		}
	}
	return transcript, analysis, nil
}

type callScanner interface {
	Scan(dest ...interface{}) error
}

func scanCall(row callScanner) (*domain.Call, error) {
	var call domain.Call
	var status string
	var transcriptRaw, analysisRaw []byte

	err := row.Scan(
		&call.ID,
		&call.OwnerID,
		&call.OriginalFilename,
		&call.AudioRef,
		&call.MimeType,
		&call.SizeBytes,
		&call.DurationSeconds,
		&call.ScenarioType,
		&status,
		&transcriptRaw,
		&analysisRaw,
		&call.ErrorMessage,
		&call.CreatedAt,
		&call.UpdatedAt,
		&call.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	call.Status = domain.CallStatus(status)
	if len(transcriptRaw) > 0 {
		if err := json.Unmarshal(transcriptRaw, &call.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	if len(analysisRaw) > 0 {
		if err := json.Unmarshal(analysisRaw, &call.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	return &call, nil
}

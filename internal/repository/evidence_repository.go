package repository

import (
	"context"

	"github.com/spec-kit/civic-service/internal/domain"
)

// EvidenceRepository persists completion evidence metadata.
type EvidenceRepository interface {
	Create(ctx context.Context, evidence *domain.Evidence) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.Evidence, error)
}

type evidenceRepository struct {
	db DBTX
}

// NewEvidenceRepository constructs repository.
func NewEvidenceRepository(db DBTX) EvidenceRepository {
	return &evidenceRepository{db: db}
}

func (r *evidenceRepository) Create(ctx context.Context, evidence *domain.Evidence) error {
	const query = `
        INSERT INTO completion_evidence (request_id, task_id, storage_key, url, file_name, mime_type, size_bytes, uploaded_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		evidence.RequestID,
		evidence.TaskID,
		evidence.StorageKey,
		evidence.URL,
		evidence.FileName,
		evidence.MimeType,
		evidence.SizeBytes,
		evidence.UploadedBy,
	).Scan(&evidence.ID, &evidence.CreatedAt)
}

func (r *evidenceRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.Evidence, error) {
	const query = `
        SELECT id, request_id, task_id, storage_key, url, file_name, mime_type, size_bytes, uploaded_by, created_at
        FROM completion_evidence WHERE request_id=$1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Evidence
	for rows.Next() {
		var evidence domain.Evidence
		if err := rows.Scan(
			&evidence.ID,
			&evidence.RequestID,
			&evidence.TaskID,
			&evidence.StorageKey,
			&evidence.URL,
			&evidence.FileName,
			&evidence.MimeType,
			&evidence.SizeBytes,
			&evidence.UploadedBy,
			&evidence.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, evidence)
	}
	return result, rows.Err()
}

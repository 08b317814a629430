package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"secure-upload/internal/domain/upload"
	upload_errors "secure-upload/pkg/errors"
)

// UploadRepository persists completed-upload history rows.
type UploadRepository interface {
	Create(ctx context.Context, record *upload.Record) error
	ListCompleted(ctx context.Context, userID uuid.UUID, limit int) ([]upload.Record, error)
}

type PostgresUploadRepository struct {
	db DBTX
}

func NewUploadRepository(db DBTX) *PostgresUploadRepository {
	return &PostgresUploadRepository{db: db}
}

// EnsureSchema creates the uploads table when it does not exist yet.
func EnsureSchema(ctx context.Context, db DBTX) error {
	query := `
		CREATE TABLE IF NOT EXISTS uploads (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			filename TEXT NOT NULL,
			digest TEXT NOT NULL,
			object_key TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_uploads_user_created
			ON uploads (user_id, created_at DESC);`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure uploads schema: %w", err)
	}
	return nil
}

func (r *PostgresUploadRepository) Create(ctx context.Context, record *upload.Record) error {
	query := `
		INSERT INTO uploads (id, user_id, filename, digest, object_key, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Filename, record.Digest,
		record.ObjectKey, string(record.Status), record.CreatedAt, record.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: upload %s already recorded", upload_errors.ErrStore, record.ID)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresUploadRepository) ListCompleted(ctx context.Context, userID uuid.UUID, limit int) ([]upload.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, user_id, filename, digest, object_key, status, created_at, completed_at
		FROM uploads
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var result []upload.Record
	for rows.Next() {
		var item upload.Record
		var status string
		if err := rows.Scan(&item.ID, &item.UserID, &item.Filename, &item.Digest,
			&item.ObjectKey, &status, &item.CreatedAt, &item.CompletedAt); err != nil {
			return nil, err
		}
		item.Status = upload.Status(status)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

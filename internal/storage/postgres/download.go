package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"media_bridge/internal/domain"
)

type DownloadStore struct {
	db *sqlx.DB
}

func NewDownloadStore(db *sqlx.DB) *DownloadStore {
	return &DownloadStore{db: db}
}

func (s *DownloadStore) Create(ctx context.Context, job *domain.DownloadJob) error {
	query := `
		INSERT INTO download_jobs (id, source_url, status, owner_id, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	row := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		job.ID,
		job.SourceURL,
		job.Status,
		job.OwnerID,
		job.RequestedAt,
	)
	return row.Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (s *DownloadStore) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	query := `
		UPDATE download_jobs
		SET status = $2, updated_at = now()
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, status)
	return err
}

func (s *DownloadStore) FindByID(ctx context.Context, id string) (*domain.DownloadJob, error) {
	query := `
		SELECT id, source_url, status, owner_id, requested_at, created_at, updated_at
		FROM download_jobs
		WHERE id = $1`

	var job domain.DownloadJob
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkStaleFailed flips jobs that never received a worker report to failed
// and returns their ids.
func (s *DownloadStore) MarkStaleFailed(ctx context.Context, before time.Time) ([]string, error) {
	query := `
		UPDATE download_jobs
		SET status = $1, updated_at = now()
		WHERE status = $2 AND created_at < $3
		RETURNING id`

	var ids []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query,
		domain.JobStatusFailed,
		domain.JobStatusUnknown,
		before,
	)
	return ids, err
}

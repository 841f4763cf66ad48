package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type ErrorStore struct {
	db *sqlx.DB
}

func NewErrorStore(db *sqlx.DB) *ErrorStore {
	return &ErrorStore{db: db}
}

// Create records a failure message, optionally linked to a download job.
func (s *ErrorStore) Create(ctx context.Context, message, downloadID string) error {
	query := `
		INSERT INTO error_records (message, download_id)
		VALUES ($1, NULLIF($2, '')::uuid)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, message, downloadID)
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"media_bridge/internal/domain"
)

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// Upsert creates the user for a contact id or refreshes its display fields,
// returning the stored row either way.
func (s *UserStore) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (contact_id, name, number)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			number = CASE WHEN EXCLUDED.number <> '' THEN EXCLUDED.number ELSE users.number END,
			updated_at = now()
		RETURNING id, contact_id, name, number, created_at, updated_at`

	var stored domain.User
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &stored, query,
		user.ContactID,
		user.Name,
		user.Number,
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *UserStore) FindByContactID(ctx context.Context, contactID string) (*domain.User, error) {
	query := `
		SELECT id, contact_id, name, number, created_at, updated_at
		FROM users
		WHERE contact_id = $1`

	var user domain.User
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &user, query, contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Package session provides the SQLite-backed key/value store holding the
// active session.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/dbx"
)

const (
	keyEmail        = "email"
	keySalt         = "encryption_salt"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// SQLiteRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set session[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, s *models.Session) error {
	pairs := map[string][]byte{
		keyEmail:        []byte(s.Email),
		keySalt:         s.EncryptionSalt,
		keyAccessToken:  []byte(s.AccessToken),
		keyRefreshToken: []byte(s.RefreshToken),
	}
	for k, v := range pairs {
		if err := r.set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*models.Session, error) {
	s := &models.Session{}

	email, err := r.get(ctx, keyEmail)
	if err != nil {
		return nil, err
	}
	s.Email = string(email)

	if s.EncryptionSalt, err = r.get(ctx, keySalt); err != nil {
		return nil, err
	}
	access, err := r.get(ctx, keyAccessToken)
	if err != nil {
		return nil, err
	}
	s.AccessToken = string(access)

	refresh, err := r.get(ctx, keyRefreshToken)
	if err != nil {
		return nil, err
	}
	s.RefreshToken = string(refresh)

	return s, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session`)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

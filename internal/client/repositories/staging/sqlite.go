// Package staging provides the SQLite-backed staging record store.
package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.StagingRecord) error {
	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("failed to encode staged files: %w", err)
	}
	query := `INSERT INTO staging (project_id, user_email, commit_message, files, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			user_email = excluded.user_email,
			commit_message = excluded.commit_message,
			files = excluded.files,
			created_at = excluded.created_at`
	_, err = r.db.ExecContext(ctx, query,
		rec.ProjectID, rec.UserEmail, rec.CommitMessage, files, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert staging record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, projectID string) (*models.StagingRecord, error) {
	query := `SELECT project_id, user_email, commit_message, files, created_at
		FROM staging WHERE project_id = ?`
	row := r.db.QueryRowContext(ctx, query, projectID)

	rec := &models.StagingRecord{}
	var files []byte
	err := row.Scan(&rec.ProjectID, &rec.UserEmail, &rec.CommitMessage, &files, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select staging record: %w", err)
	}
	if err := json.Unmarshal(files, &rec.Files); err != nil {
		return nil, fmt.Errorf("failed to decode staged files: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM staging WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to clear staging record: %w", err)
	}
	return nil
}

// Package envversions provides the SQLite-backed repository for version
// chains.
package envversions

import (
	"context"
	"database/sql"
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

const selectCols = `id, env_file_id, version_token, content, iv, auth_tag,
	commit_message, author_email, parent_version_id, synced_to_server, created_at`

func (r *SQLiteRepository) Create(ctx context.Context, v *models.EnvVersion) error {
	query := `INSERT INTO env_versions (id, env_file_id, version_token, content, iv, auth_tag,
		commit_message, author_email, parent_version_id, synced_to_server, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.EnvFileID, v.VersionToken, v.Content, v.IV, v.AuthTag,
		v.CommitMessage, v.AuthorEmail, v.ParentVersionID, v.SyncedToServer, v.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("version %s: %w", v.VersionToken, common.ErrConstraint)
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByToken(ctx context.Context, envFileID, token string) (*models.EnvVersion, error) {
	query := `SELECT ` + selectCols + ` FROM env_versions WHERE env_file_id = ? AND version_token = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, envFileID, token))
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.EnvVersion, error) {
	query := `SELECT ` + selectCols + ` FROM env_versions WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*models.EnvVersion, error) {
	v := &models.EnvVersion{}
	err := row.Scan(&v.ID, &v.EnvFileID, &v.VersionToken, &v.Content, &v.IV, &v.AuthTag,
		&v.CommitMessage, &v.AuthorEmail, &v.ParentVersionID, &v.SyncedToServer, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select version: %w", err)
	}
	return v, nil
}

func (r *SQLiteRepository) ListByFile(ctx context.Context, envFileID string) ([]models.EnvVersion, error) {
	query := `SELECT ` + selectCols + ` FROM env_versions
		WHERE env_file_id = ? ORDER BY created_at ASC, rowid ASC`
	return r.list(ctx, query, envFileID)
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context, envFileID string) ([]models.EnvVersion, error) {
	query := `SELECT ` + selectCols + ` FROM env_versions
		WHERE env_file_id = ? AND synced_to_server = 0 ORDER BY created_at ASC, rowid ASC`
	return r.list(ctx, query, envFileID)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.EnvVersion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []models.EnvVersion
	for rows.Next() {
		var v models.EnvVersion
		if err := rows.Scan(&v.ID, &v.EnvFileID, &v.VersionToken, &v.Content, &v.IV, &v.AuthTag,
			&v.CommitMessage, &v.AuthorEmail, &v.ParentVersionID, &v.SyncedToServer, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE env_versions SET synced_to_server = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark version synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("version %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListByProject(ctx context.Context, projectID string) ([]VersionWithFile, error) {
	query := `SELECT v.id, v.env_file_id, v.version_token, v.content, v.iv, v.auth_tag,
			v.commit_message, v.author_email, v.parent_version_id, v.synced_to_server, v.created_at,
			f.name
		FROM env_versions v
		JOIN env_files f ON f.id = v.env_file_id
		WHERE f.project_id = ?
		ORDER BY v.created_at DESC, v.rowid DESC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select project versions: %w", err)
	}
	defer rows.Close()

	var result []VersionWithFile
	for rows.Next() {
		var v VersionWithFile
		if err := rows.Scan(&v.ID, &v.EnvFileID, &v.VersionToken, &v.Content, &v.IV, &v.AuthTag,
			&v.CommitMessage, &v.AuthorEmail, &v.ParentVersionID, &v.SyncedToServer, &v.CreatedAt,
			&v.FileName); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByFile(ctx context.Context, envFileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM env_versions WHERE env_file_id = ?`, envFileID)
	if err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	return nil
}

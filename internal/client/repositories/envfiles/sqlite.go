// Package envfiles provides the SQLite-backed repository for env files.
package envfiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const selectCols = `id, project_id, name, content, iv, auth_tag, current_version_id, created_at, updated_at`

func (r *SQLiteRepository) Create(ctx context.Context, f *models.EnvFile) error {
	query := `INSERT INTO env_files (id, project_id, name, content, iv, auth_tag, current_version_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.ProjectID, f.Name, f.Content, f.IV, f.AuthTag, f.CurrentVersionID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("file %s: %w", f.Name, common.ErrConstraint)
		}
		return fmt.Errorf("failed to insert env file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByName(ctx context.Context, projectID, name string) (*models.EnvFile, error) {
	query := `SELECT ` + selectCols + ` FROM env_files WHERE project_id = ? AND name = ?`
	row := r.db.QueryRowContext(ctx, query, projectID, name)

	f := &models.EnvFile{}
	err := row.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Content, &f.IV, &f.AuthTag,
		&f.CurrentVersionID, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select env file: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) ListByProject(ctx context.Context, projectID string) ([]models.EnvFile, error) {
	query := `SELECT ` + selectCols + ` FROM env_files WHERE project_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select env files: %w", err)
	}
	defer rows.Close()

	var result []models.EnvFile
	for rows.Next() {
		var f models.EnvFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Content, &f.IV, &f.AuthTag,
			&f.CurrentVersionID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateHead(ctx context.Context, id string, content, iv, tag []byte, currentVersionID string, updatedAt time.Time) error {
	query := `UPDATE env_files SET content = ?, iv = ?, auth_tag = ?, current_version_id = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, content, iv, tag, currentVersionID, updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update env file head: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("env file %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Rename(ctx context.Context, id, newName string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE env_files SET name = ?, updated_at = ? WHERE id = ?`,
		newName, time.Now().UTC(), id)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("file %s: %w", newName, common.ErrConstraint)
		}
		return fmt.Errorf("failed to rename env file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("env file %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM env_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete env file: %w", err)
	}
	return nil
}

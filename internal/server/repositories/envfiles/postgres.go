package envfiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/dbx"
	"github.com/mberzins/envault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectCols = `id, project_id, name, content, iv, auth_tag, created_at, updated_at`

// Upsert inserts the file or refreshes its current content; pushes are
// idempotent by (project, name).
func (r *PostgresRepository) Upsert(ctx context.Context, f *models.EnvFile) (*models.EnvFile, error) {
	query := `INSERT INTO env_files (id, project_id, name, content, iv, auth_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id, name) DO UPDATE SET
			content = excluded.content,
			iv = excluded.iv,
			auth_tag = excluded.auth_tag,
			updated_at = excluded.updated_at
		RETURNING ` + selectCols
	row := r.db.QueryRowContext(ctx, query,
		f.ID, f.ProjectID, f.Name, f.Content, f.IV, f.AuthTag, f.CreatedAt, f.UpdatedAt)
	return scanOne(row)
}

func (r *PostgresRepository) GetByName(ctx context.Context, projectID, name string) (*models.EnvFile, error) {
	query := `SELECT ` + selectCols + ` FROM env_files WHERE project_id = $1 AND name = $2`
	return scanOne(r.db.QueryRowContext(ctx, query, projectID, name))
}

func scanOne(row *sql.Row) (*models.EnvFile, error) {
	f := &models.EnvFile{}
	err := row.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Content, &f.IV, &f.AuthTag,
		&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select env file: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByProject(ctx context.Context, projectID string) ([]models.EnvFile, error) {
	query := `SELECT ` + selectCols + ` FROM env_files WHERE project_id = $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select env files: %w", err)
	}
	defer rows.Close()

	var result []models.EnvFile
	for rows.Next() {
		var f models.EnvFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Content, &f.IV, &f.AuthTag,
			&f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id, newName string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE env_files SET name = $1, updated_at = $2 WHERE id = $3`,
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

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM env_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete env file: %w", err)
	}
	return nil
}

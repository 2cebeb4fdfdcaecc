package envversions

import (
	"context"
	"fmt"

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

// CreateIfAbsent inserts the version; a version already pushed under the
// same token is a no-op, which makes retried pushes idempotent.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, v *models.EnvVersion) error {
	query := `INSERT INTO env_versions (id, env_file_id, version_token, content, iv, auth_tag,
			commit_message, author_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (env_file_id, version_token) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.EnvFileID, v.VersionToken, v.Content, v.IV, v.AuthTag,
		v.CommitMessage, v.AuthorEmail, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, envFileID string) ([]models.EnvVersion, error) {
	query := `SELECT id, env_file_id, version_token, content, iv, auth_tag,
			commit_message, author_email, created_at
		FROM env_versions WHERE env_file_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, envFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []models.EnvVersion
	for rows.Next() {
		var v models.EnvVersion
		if err := rows.Scan(&v.ID, &v.EnvFileID, &v.VersionToken, &v.Content, &v.IV, &v.AuthTag,
			&v.CommitMessage, &v.AuthorEmail, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, envFileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM env_versions WHERE env_file_id = $1`, envFileID)
	if err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	return nil
}

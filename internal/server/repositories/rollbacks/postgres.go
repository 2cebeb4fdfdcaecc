package rollbacks

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

// CreateIfAbsent inserts the record; a record already pushed with the same
// (file, from, to, created_at) is a no-op, which makes retried pushes
// idempotent.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, rec *models.RollbackRecord) error {
	query := `INSERT INTO rollback_records (id, env_file_id, from_version_token, to_version_token,
			reason, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (env_file_id, from_version_token, to_version_token, created_at) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.EnvFileID, rec.FromVersionToken, rec.ToVersionToken,
		rec.Reason, rec.PerformedBy, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rollback record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, envFileID string) ([]models.RollbackRecord, error) {
	query := `SELECT id, env_file_id, from_version_token, to_version_token,
			reason, performed_by, created_at
		FROM rollback_records WHERE env_file_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, envFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select rollback records: %w", err)
	}
	defer rows.Close()

	var result []models.RollbackRecord
	for rows.Next() {
		var rec models.RollbackRecord
		if err := rows.Scan(&rec.ID, &rec.EnvFileID, &rec.FromVersionToken, &rec.ToVersionToken,
			&rec.Reason, &rec.PerformedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, envFileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rollback_records WHERE env_file_id = $1`, envFileID)
	if err != nil {
		return fmt.Errorf("failed to delete rollback records: %w", err)
	}
	return nil
}

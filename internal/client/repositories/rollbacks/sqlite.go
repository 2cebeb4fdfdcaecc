// Package rollbacks provides the SQLite-backed repository for the rollback
// log.
package rollbacks

import (
	"context"
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

const selectCols = `id, env_file_id, from_version_token, to_version_token, reason, performed_by, synced_to_server, created_at`

func (r *SQLiteRepository) Create(ctx context.Context, rec *models.RollbackRecord) error {
	query := `INSERT INTO rollback_records (id, env_file_id, from_version_token, to_version_token,
		reason, performed_by, synced_to_server, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.EnvFileID, rec.FromVersionToken, rec.ToVersionToken,
		rec.Reason, rec.PerformedBy, rec.SyncedToServer, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rollback record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByFile(ctx context.Context, envFileID string) ([]models.RollbackRecord, error) {
	query := `SELECT ` + selectCols + ` FROM rollback_records
		WHERE env_file_id = ? ORDER BY created_at ASC, rowid ASC`
	return r.list(ctx, query, envFileID)
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context, envFileID string) ([]models.RollbackRecord, error) {
	query := `SELECT ` + selectCols + ` FROM rollback_records
		WHERE env_file_id = ? AND synced_to_server = 0 ORDER BY created_at ASC, rowid ASC`
	return r.list(ctx, query, envFileID)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.RollbackRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select rollback records: %w", err)
	}
	defer rows.Close()

	var result []models.RollbackRecord
	for rows.Next() {
		var rec models.RollbackRecord
		if err := rows.Scan(&rec.ID, &rec.EnvFileID, &rec.FromVersionToken, &rec.ToVersionToken,
			&rec.Reason, &rec.PerformedBy, &rec.SyncedToServer, &rec.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rollback_records SET synced_to_server = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark rollback record synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("rollback record %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByFile(ctx context.Context, envFileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rollback_records WHERE env_file_id = ?`, envFileID)
	if err != nil {
		return fmt.Errorf("failed to delete rollback records: %w", err)
	}
	return nil
}

// Package pendingops provides the SQLite-backed queue of pending remote
// operations.
package pendingops

import (
	"context"
	"fmt"

	"github.com/mberzins/envault/internal/client/models"
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

func (r *SQLiteRepository) Create(ctx context.Context, op *models.PendingOperation) error {
	query := `INSERT INTO pending_operations (id, operation_type, entity_type, entity_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, string(op.Type), string(op.EntityType), op.EntityID, op.Payload, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT id, operation_type, entity_type, entity_id, payload, created_at
		FROM pending_operations ORDER BY created_at ASC, rowid ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending operations: %w", err)
	}
	defer rows.Close()

	var result []models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		var opType, entityType string
		if err := rows.Scan(&op.ID, &opType, &entityType, &op.EntityID, &op.Payload, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Type = models.OperationType(opType)
		op.EntityType = models.EntityType(entityType)
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) HasSyncForEntity(ctx context.Context, entityID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_operations WHERE operation_type = ? AND entity_id = ?`,
		string(models.OperationSync), entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count pending syncs: %w", err)
	}
	return n > 0, nil
}

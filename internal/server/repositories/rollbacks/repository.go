// Package rollbacks provides the Postgres-backed repository for pushed
// rollback log entries.
package rollbacks

import (
	"context"

	"github.com/mberzins/envault/internal/server/models"
)

// Repository persists rollback records.
type Repository interface {
	CreateIfAbsent(ctx context.Context, rec *models.RollbackRecord) error
	ListByFile(ctx context.Context, envFileID string) ([]models.RollbackRecord, error)
	DeleteByFile(ctx context.Context, envFileID string) error
}

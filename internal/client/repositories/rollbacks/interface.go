package rollbacks

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository describes persistence operations for the append-only rollback
// log.
type Repository interface {
	// Create appends a rollback record.
	Create(ctx context.Context, rec *models.RollbackRecord) error

	// ListByFile returns the file's rollback records, oldest first.
	ListByFile(ctx context.Context, envFileID string) ([]models.RollbackRecord, error)

	// ListUnsynced returns records with synced_to_server = 0, oldest first.
	ListUnsynced(ctx context.Context, envFileID string) ([]models.RollbackRecord, error)

	// MarkSynced flips synced_to_server after a remote acknowledgment.
	MarkSynced(ctx context.Context, id string) error

	// DeleteByFile removes every record of the file (cascading deletion and
	// wholesale history replacement during pull).
	DeleteByFile(ctx context.Context, envFileID string) error
}

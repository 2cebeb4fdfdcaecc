package pendingops

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository describes the queue of remote side-effects awaiting replay.
type Repository interface {
	// Create enqueues an operation.
	Create(ctx context.Context, op *models.PendingOperation) error

	// ListAll returns every queued operation in creation order (oldest first),
	// which is also the replay order.
	ListAll(ctx context.Context) ([]models.PendingOperation, error)

	// Delete removes an operation after a successful replay.
	Delete(ctx context.Context, id string) error

	// HasSyncForEntity reports whether a SYNC operation is already queued for
	// the entity, so an offline sync queues at most one.
	HasSyncForEntity(ctx context.Context, entityID string) (bool, error)
}

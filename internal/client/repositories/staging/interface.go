package staging

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository persists the single transient staging record per project.
type Repository interface {
	// Upsert stores the staging record, overwriting any live record for the
	// same project.
	Upsert(ctx context.Context, rec *models.StagingRecord) error

	// Get returns the project's live staging record or common.ErrNotFound.
	Get(ctx context.Context, projectID string) (*models.StagingRecord, error)

	// Clear removes the project's staging record. Clearing an absent record
	// is not an error.
	Clear(ctx context.Context, projectID string) error
}

// Package envversions provides the Postgres-backed repository for pushed
// version history.
package envversions

import (
	"context"

	"github.com/mberzins/envault/internal/server/models"
)

// Repository persists version snapshots.
type Repository interface {
	CreateIfAbsent(ctx context.Context, v *models.EnvVersion) error
	ListByFile(ctx context.Context, envFileID string) ([]models.EnvVersion, error)
	DeleteByFile(ctx context.Context, envFileID string) error
}

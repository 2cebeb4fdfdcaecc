// Package envfiles provides the Postgres-backed repository for env files.
package envfiles

import (
	"context"

	"github.com/mberzins/envault/internal/server/models"
)

// Repository persists env files.
type Repository interface {
	Upsert(ctx context.Context, f *models.EnvFile) (*models.EnvFile, error)
	GetByName(ctx context.Context, projectID, name string) (*models.EnvFile, error)
	ListByProject(ctx context.Context, projectID string) ([]models.EnvFile, error)
	Rename(ctx context.Context, id, newName string) error
	Delete(ctx context.Context, id string) error
}

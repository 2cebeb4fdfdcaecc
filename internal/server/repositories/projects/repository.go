// Package projects provides the Postgres-backed repository for projects.
package projects

import (
	"context"

	"github.com/mberzins/envault/internal/server/models"
)

// Repository persists projects.
type Repository interface {
	GetOrCreate(ctx context.Context, userID, name string) (*models.Project, error)
	GetByName(ctx context.Context, userID, name string) (*models.Project, error)
	Delete(ctx context.Context, id string) error
}

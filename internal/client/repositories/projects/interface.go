package projects

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository describes persistence operations for projects.
type Repository interface {
	// Create inserts a new project. A duplicate (user, name) yields
	// common.ErrConstraint.
	Create(ctx context.Context, project *models.Project) error

	// GetByName returns the user's project with the given name or
	// common.ErrNotFound.
	GetByName(ctx context.Context, userID, name string) (*models.Project, error)

	// GetByDirectory returns the user's project whose directory path matches
	// dir, used to auto-select the active project.
	GetByDirectory(ctx context.Context, userID, dir string) (*models.Project, error)

	// List returns all projects owned by the user.
	List(ctx context.Context, userID string) ([]models.Project, error)

	// Touch bumps the project's updated_at.
	Touch(ctx context.Context, id string) error

	// Delete removes the project row only. Dependent rows are removed first
	// by the store's cascading deletion.
	Delete(ctx context.Context, id string) error
}

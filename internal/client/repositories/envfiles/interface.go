package envfiles

import (
	"context"
	"time"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository describes persistence operations for env files.
//
// The denormalized head content (content/iv/auth_tag/current_version_id) is
// written only through UpdateHead, which the version-control engine calls
// inside the same transaction that inserts the new version.
type Repository interface {
	// Create inserts a new file row. A duplicate (project, name) yields
	// common.ErrConstraint.
	Create(ctx context.Context, file *models.EnvFile) error

	// GetByName returns the project's file with the given name or
	// common.ErrNotFound.
	GetByName(ctx context.Context, projectID, name string) (*models.EnvFile, error)

	// ListByProject returns all files of the project ordered by name.
	ListByProject(ctx context.Context, projectID string) ([]models.EnvFile, error)

	// UpdateHead replaces the denormalized head content and head pointer.
	UpdateHead(ctx context.Context, id string, content, iv, tag []byte, currentVersionID string, updatedAt time.Time) error

	// Rename changes the file's name within its project.
	Rename(ctx context.Context, id, newName string) error

	// Delete removes the file row only; dependent version and rollback rows
	// are removed first by the store's cascading deletion.
	Delete(ctx context.Context, id string) error
}

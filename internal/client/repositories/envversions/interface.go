package envversions

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// VersionWithFile annotates a version with the owning file's name, for the
// cross-file interleaved commit log.
type VersionWithFile struct {
	models.EnvVersion
	FileName string
}

// Repository describes persistence operations for immutable version
// snapshots. Content fields of a version never change once created; the only
// mutable column is the sync flag.
type Repository interface {
	// Create inserts a new version. A duplicate (file, token) yields
	// common.ErrConstraint.
	Create(ctx context.Context, v *models.EnvVersion) error

	// GetByToken returns the file's version with the given token or
	// common.ErrNotFound.
	GetByToken(ctx context.Context, envFileID, token string) (*models.EnvVersion, error)

	// GetByID returns a version by its row id or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.EnvVersion, error)

	// ListByFile returns the file's versions in creation order (oldest first).
	ListByFile(ctx context.Context, envFileID string) ([]models.EnvVersion, error)

	// ListUnsynced returns versions with synced_to_server = 0 in creation order.
	ListUnsynced(ctx context.Context, envFileID string) ([]models.EnvVersion, error)

	// MarkSynced flips synced_to_server after a remote acknowledgment.
	MarkSynced(ctx context.Context, id string) error

	// ListByProject returns all versions across the project's files, newest
	// first, annotated with file names.
	ListByProject(ctx context.Context, projectID string) ([]VersionWithFile, error)

	// DeleteByFile removes every version of the file (used by cascading
	// deletion and by pull, which replaces local history wholesale).
	DeleteByFile(ctx context.Context, envFileID string) error
}

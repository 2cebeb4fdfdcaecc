package store

import (
	"time"

	"github.com/mberzins/envault/internal/client/models"
)

// FileHistory carries a file's authoritative remote state during pull:
// the denormalized head plus the full version chain and rollback log that
// replace local history wholesale.
type FileHistory struct {
	EnvFileID        string
	Content          []byte
	IV               []byte
	AuthTag          []byte
	CurrentVersionID string
	UpdatedAt        time.Time
	Versions         []models.EnvVersion
	Rollbacks        []models.RollbackRecord
}

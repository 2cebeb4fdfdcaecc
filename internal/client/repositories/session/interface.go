package session

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository persists the active identity and its tokens between CLI
// invocations. The session is always loaded into an explicit models.Session
// value; components never read it from ambient state.
type Repository interface {
	// Save stores the session, replacing any previous one.
	Save(ctx context.Context, s *models.Session) error

	// Load returns the stored session. A missing session yields an empty,
	// logged-out session, not an error.
	Load(ctx context.Context) (*models.Session, error)

	// Clear removes the stored session (logout, failed token refresh).
	Clear(ctx context.Context) error
}

// Package refreshtokens provides the Postgres-backed repository for opaque
// refresh tokens.
package refreshtokens

import (
	"context"

	"github.com/mberzins/envault/internal/server/models"
)

// Repository persists refresh tokens.
type Repository interface {
	Create(ctx context.Context, t *models.RefreshToken) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
}

package users

import (
	"context"

	"github.com/mberzins/envault/internal/client/models"
)

// Repository describes persistence operations for local user accounts.
type Repository interface {
	// Create inserts a new user. A duplicate email yields common.ErrConstraint.
	Create(ctx context.Context, user *models.User) error

	// GetByEmail returns the user with the given email or common.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

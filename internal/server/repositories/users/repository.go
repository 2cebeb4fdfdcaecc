// Package users provides the Postgres-backed repository for accounts.
package users

import (
	"context"

	"github.com/mberzins/envault/internal/server/models"
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

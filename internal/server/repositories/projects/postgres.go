package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/dbx"
	"github.com/mberzins/envault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate returns the user's project of the given name, creating it on
// first use. Projects come into existence implicitly with the first pushed
// file.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, userID, name string) (*models.Project, error) {
	project, err := r.GetByName(ctx, userID, name)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	project = &models.Project{
		ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: time.Now().UTC(),
	}
	query := `INSERT INTO projects (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		project.ID, project.UserID, project.Name, project.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	// A concurrent insert may have won the conflict; read back the row.
	return r.GetByName(ctx, userID, name)
}

func (r *PostgresRepository) GetByName(ctx context.Context, userID, name string) (*models.Project, error) {
	query := `SELECT id, user_id, name, created_at FROM projects
		WHERE user_id = $1 AND name = $2`
	project := &models.Project{}
	err := r.db.QueryRowContext(ctx, query, userID, name).
		Scan(&project.ID, &project.UserID, &project.Name, &project.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select project: %w", err)
	}
	return project, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

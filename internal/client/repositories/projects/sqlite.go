// Package projects provides the SQLite-backed repository for projects.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, p *models.Project) error {
	query := `INSERT INTO projects (id, user_id, name, directory_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Name, p.DirectoryPath, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("project %s: %w", p.Name, common.ErrConstraint)
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByName(ctx context.Context, userID, name string) (*models.Project, error) {
	query := `SELECT id, user_id, name, directory_path, created_at, updated_at
		FROM projects WHERE user_id = ? AND name = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, name))
}

func (r *SQLiteRepository) GetByDirectory(ctx context.Context, userID, dir string) (*models.Project, error) {
	query := `SELECT id, user_id, name, directory_path, created_at, updated_at
		FROM projects WHERE user_id = ? AND directory_path = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, dir))
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.DirectoryPath, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select project: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]models.Project, error) {
	query := `SELECT id, user_id, name, directory_path, created_at, updated_at
		FROM projects WHERE user_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select projects: %w", err)
	}
	defer rows.Close()

	var result []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.DirectoryPath, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

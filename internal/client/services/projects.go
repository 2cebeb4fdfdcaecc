package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/client/remote"
	"github.com/mberzins/envault/internal/client/store"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/logging"
)

// ProjectService manages projects and tracked files, queuing the remote
// side-effects of renames and deletions when the server is unreachable.
type ProjectService struct {
	st     *store.Store
	remote remote.Client
	log    logging.Logger
}

// NewProjectService returns a project service over the given store and
// transport.
func NewProjectService(st *store.Store, rc remote.Client, log logging.Logger) *ProjectService {
	return &ProjectService{st: st, remote: rc, log: log}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid name %q: %w", name, common.ErrValidation)
	}
	return nil
}

func (p *ProjectService) userID(ctx context.Context, sess *models.Session) (string, error) {
	if !sess.LoggedIn() {
		return "", fmt.Errorf("not logged in: %w", common.ErrUnauthorized)
	}
	user, err := p.st.Users.GetByEmail(ctx, sess.Email)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// Init registers dir as a project of the given name. (user, name) is unique;
// initializing the same name twice fails with a constraint error.
func (p *ProjectService) Init(ctx context.Context, sess *models.Session, name, dir string) (*models.Project, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	userID, err := p.userID(ctx, sess)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		DirectoryPath: abs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.st.Projects.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Resolve finds the project registered for dir, so commands pick up the
// active project from the working directory.
func (p *ProjectService) Resolve(ctx context.Context, sess *models.Session, dir string) (*models.Project, error) {
	userID, err := p.userID(ctx, sess)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	project, err := p.st.Projects.GetByDirectory(ctx, userID, abs)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("no project in %s, run init first: %w", abs, common.ErrNotFound)
	}
	return project, err
}

// ResolveByName finds the user's project by name.
func (p *ProjectService) ResolveByName(ctx context.Context, sess *models.Session, name string) (*models.Project, error) {
	userID, err := p.userID(ctx, sess)
	if err != nil {
		return nil, err
	}
	return p.st.Projects.GetByName(ctx, userID, name)
}

// List returns the user's projects.
func (p *ProjectService) List(ctx context.Context, sess *models.Session) ([]models.Project, error) {
	userID, err := p.userID(ctx, sess)
	if err != nil {
		return nil, err
	}
	return p.st.Projects.List(ctx, userID)
}

// queue records a pending operation for later replay. Called only after a
// connectivity-class remote failure; the local change has already landed.
func (p *ProjectService) queue(ctx context.Context, opType models.OperationType, entityType models.EntityType, entityID string, payload any) error {
	data, err := models.EncodePayload(payload)
	if err != nil {
		return err
	}
	return p.st.PendingOps.Create(ctx, &models.PendingOperation{
		ID:         uuid.NewString(),
		Type:       opType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
		CreatedAt:  time.Now().UTC(),
	})
}

// persistSession stores the session after an authenticated remote call. The
// transport may have rotated the token pair in place, and the server deletes
// the old refresh token on rotation, so the persisted pair must follow.
func (p *ProjectService) persistSession(ctx context.Context, sess *models.Session) {
	if err := p.st.Session.Save(ctx, sess); err != nil {
		p.log.Warn(ctx, "failed to persist session", "error", err)
	}
}

// RenameFile renames a tracked file locally (store and disk) and on the
// server. An unreachable server queues the remote rename instead of failing.
func (p *ProjectService) RenameFile(ctx context.Context, sess *models.Session, project *models.Project, oldName, newName string) error {
	if err := validateName(newName); err != nil {
		return err
	}
	file, err := p.st.EnvFiles.GetByName(ctx, project.ID, oldName)
	if err != nil {
		return fmt.Errorf("file %s: %w", oldName, err)
	}
	if err := p.st.EnvFiles.Rename(ctx, file.ID, newName); err != nil {
		return err
	}

	oldPath := filepath.Join(project.DirectoryPath, oldName)
	newPath := filepath.Join(project.DirectoryPath, newName)
	if err := os.Rename(oldPath, newPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Warn(ctx, "tracked rename succeeded but disk rename failed",
			"old", oldPath, "new", newPath, "error", err)
	}

	err = p.remote.RenameEnvFile(ctx, sess, project.Name, oldName, newName)
	p.persistSession(ctx, sess)
	if errors.Is(err, common.ErrConnectivity) {
		p.log.Info(ctx, "server unreachable, queuing rename", "file", newName)
		return p.queue(ctx, models.OperationRename, models.EntityEnvFile, file.ID, models.RenamePayload{
			ProjectName: project.Name, OldName: oldName, NewName: newName,
		})
	}
	return err
}

// RemoveFile untracks a file: its versions and rollback records are deleted
// locally in one transaction and the deletion is propagated to the server.
// The file on disk is left alone.
func (p *ProjectService) RemoveFile(ctx context.Context, sess *models.Session, project *models.Project, name string) error {
	file, err := p.st.EnvFiles.GetByName(ctx, project.ID, name)
	if err != nil {
		return fmt.Errorf("file %s: %w", name, err)
	}
	if err := p.st.DeleteEnvFile(ctx, file.ID); err != nil {
		return err
	}

	err = p.remote.DeleteEnvFile(ctx, sess, project.Name, name)
	p.persistSession(ctx, sess)
	if errors.Is(err, common.ErrConnectivity) {
		p.log.Info(ctx, "server unreachable, queuing file deletion", "file", name)
		return p.queue(ctx, models.OperationDelete, models.EntityEnvFile, file.ID, models.DeletePayload{
			ProjectName: project.Name, FileName: name,
		})
	}
	return err
}

// RemoveProject deletes the project with everything under it, locally and on
// the server.
func (p *ProjectService) RemoveProject(ctx context.Context, sess *models.Session, project *models.Project) error {
	if err := p.st.DeleteProject(ctx, project.ID); err != nil {
		return err
	}

	err := p.remote.DeleteProject(ctx, sess, project.Name)
	p.persistSession(ctx, sess)
	if errors.Is(err, common.ErrConnectivity) {
		p.log.Info(ctx, "server unreachable, queuing project deletion", "project", project.Name)
		return p.queue(ctx, models.OperationDelete, models.EntityProject, project.ID, models.DeletePayload{
			ProjectName: project.Name,
		})
	}
	return err
}

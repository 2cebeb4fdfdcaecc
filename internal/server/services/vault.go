package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/dbx"
	"github.com/mberzins/envault/internal/logging"
	"github.com/mberzins/envault/internal/server/models"
	"github.com/mberzins/envault/internal/server/repositories/envfiles"
	"github.com/mberzins/envault/internal/server/repositories/envversions"
	"github.com/mberzins/envault/internal/server/repositories/projects"
	"github.com/mberzins/envault/internal/server/repositories/rollbacks"
	"github.com/mberzins/envault/internal/server/repositories/users"
)

// FilePush is an env file upsert received from a client.
type FilePush struct {
	ProjectName string
	FileName    string
	Content     []byte
	IV          []byte
	AuthTag     []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VersionPush is a version snapshot received from a client.
type VersionPush struct {
	ProjectName   string
	FileName      string
	VersionToken  string
	Content       []byte
	IV            []byte
	AuthTag       []byte
	CommitMessage string
	AuthorEmail   string
	CreatedAt     time.Time
}

// RollbackPush is a rollback log entry received from a client.
type RollbackPush struct {
	ProjectName string
	FileName    string
	FromToken   string
	ToToken     string
	Reason      string
	PerformedBy string
	CreatedAt   time.Time
}

// FileWithHistory is an env file with its complete pushed history, versions
// and rollbacks oldest first.
type FileWithHistory struct {
	File      models.EnvFile
	Versions  []models.EnvVersion
	Rollbacks []models.RollbackRecord
}

// VaultService handles the encrypted payload the clients push and pull. The
// server stores ciphertext only and never inspects it.
type VaultService struct {
	db  *sql.DB
	log logging.Logger
}

// NewVaultService constructs a VaultService.
func NewVaultService(db *sql.DB, log logging.Logger) *VaultService {
	return &VaultService{db: db, log: log}
}

// UpsertEnvFile stores or refreshes a file's current encrypted content. The
// project comes into existence with the first pushed file.
func (s *VaultService) UpsertEnvFile(ctx context.Context, userID string, req *FilePush) error {
	if req.ProjectName == "" || req.FileName == "" {
		return fmt.Errorf("project and file name required: %w", common.ErrValidation)
	}
	project, err := projects.NewPostgresRepository(s.db).GetOrCreate(ctx, userID, req.ProjectName)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt, updatedAt := req.CreatedAt, req.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	_, err = envfiles.NewPostgresRepository(s.db).Upsert(ctx, &models.EnvFile{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Name:      req.FileName,
		Content:   req.Content,
		IV:        req.IV,
		AuthTag:   req.AuthTag,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	})
	return err
}

// AddVersion stores a version snapshot. A snapshot already pushed under the
// same token is silently accepted so lost-ack retries converge.
func (s *VaultService) AddVersion(ctx context.Context, userID string, req *VersionPush) error {
	if req.VersionToken == "" {
		return fmt.Errorf("version token required: %w", common.ErrValidation)
	}
	file, err := s.resolveFile(ctx, s.db, userID, req.ProjectName, req.FileName)
	if err != nil {
		return err
	}
	author := req.AuthorEmail
	if author == "" {
		user, err := users.NewPostgresRepository(s.db).GetByID(ctx, userID)
		if err != nil {
			return err
		}
		author = user.Email
	}
	return envversions.NewPostgresRepository(s.db).CreateIfAbsent(ctx, &models.EnvVersion{
		ID:            uuid.NewString(),
		EnvFileID:     file.ID,
		VersionToken:  req.VersionToken,
		Content:       req.Content,
		IV:            req.IV,
		AuthTag:       req.AuthTag,
		CommitMessage: req.CommitMessage,
		AuthorEmail:   author,
		CreatedAt:     req.CreatedAt,
	})
}

// AddRollback stores a rollback log entry, idempotently.
func (s *VaultService) AddRollback(ctx context.Context, userID string, req *RollbackPush) error {
	file, err := s.resolveFile(ctx, s.db, userID, req.ProjectName, req.FileName)
	if err != nil {
		return err
	}
	return rollbacks.NewPostgresRepository(s.db).CreateIfAbsent(ctx, &models.RollbackRecord{
		ID:               uuid.NewString(),
		EnvFileID:        file.ID,
		FromVersionToken: req.FromToken,
		ToVersionToken:   req.ToToken,
		Reason:           req.Reason,
		PerformedBy:      req.PerformedBy,
		CreatedAt:        req.CreatedAt,
	})
}

// ListProjectFiles returns every file of the project with embedded history.
// A project the user has never pushed yields an empty list, not an error, so
// a fresh machine can pull before its first push.
func (s *VaultService) ListProjectFiles(ctx context.Context, userID, projectName string) ([]FileWithHistory, error) {
	project, err := projects.NewPostgresRepository(s.db).GetByName(ctx, userID, projectName)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	files, err := envfiles.NewPostgresRepository(s.db).ListByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	result := make([]FileWithHistory, 0, len(files))
	for _, f := range files {
		versions, err := envversions.NewPostgresRepository(s.db).ListByFile(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		rbs, err := rollbacks.NewPostgresRepository(s.db).ListByFile(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, FileWithHistory{File: f, Versions: versions, Rollbacks: rbs})
	}
	return result, nil
}

// RenameEnvFile renames a file within a project. A name collision maps to
// common.ErrConstraint.
func (s *VaultService) RenameEnvFile(ctx context.Context, userID, projectName, oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("new name required: %w", common.ErrValidation)
	}
	file, err := s.resolveFile(ctx, s.db, userID, projectName, oldName)
	if err != nil {
		return err
	}
	return envfiles.NewPostgresRepository(s.db).Rename(ctx, file.ID, newName)
}

// DeleteEnvFile removes a file with its versions and rollback records in one
// transaction.
func (s *VaultService) DeleteEnvFile(ctx context.Context, userID, projectName, fileName string) error {
	file, err := s.resolveFile(ctx, s.db, userID, projectName, fileName)
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return deleteFileTree(ctx, tx, file.ID)
	})
}

// DeleteProject removes the project and everything under it in one
// transaction.
func (s *VaultService) DeleteProject(ctx context.Context, userID, projectName string) error {
	project, err := projects.NewPostgresRepository(s.db).GetByName(ctx, userID, projectName)
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		files, err := envfiles.NewPostgresRepository(tx).ListByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := deleteFileTree(ctx, tx, f.ID); err != nil {
				return err
			}
		}
		return projects.NewPostgresRepository(tx).Delete(ctx, project.ID)
	})
}

func (s *VaultService) resolveFile(ctx context.Context, db dbx.DBTX, userID, projectName, fileName string) (*models.EnvFile, error) {
	project, err := projects.NewPostgresRepository(db).GetByName(ctx, userID, projectName)
	if err != nil {
		return nil, err
	}
	return envfiles.NewPostgresRepository(db).GetByName(ctx, project.ID, fileName)
}

func deleteFileTree(ctx context.Context, tx dbx.DBTX, envFileID string) error {
	if err := envversions.NewPostgresRepository(tx).DeleteByFile(ctx, envFileID); err != nil {
		return err
	}
	if err := rollbacks.NewPostgresRepository(tx).DeleteByFile(ctx, envFileID); err != nil {
		return err
	}
	return envfiles.NewPostgresRepository(tx).Delete(ctx, envFileID)
}

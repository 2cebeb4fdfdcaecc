// Package services implements the client-side application services that sit
// between the CLI commands and the store, engine, and remote transport.
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
	"github.com/mberzins/envault/internal/client/store"
	"github.com/mberzins/envault/internal/client/vcs"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/filex"
	"github.com/mberzins/envault/internal/logging"
)

// FileState classifies a working-directory file relative to its committed
// head.
type FileState int

const (
	FileUnchanged FileState = iota
	FileNew
	FileModified
	FileMissing
)

// Change is one detected difference between the working directory and the
// committed state. Plaintext is empty for missing files.
type Change struct {
	Name      string
	State     FileState
	Plaintext []byte
}

// FileError is a per-file failure inside a multi-file operation.
type FileError struct {
	Name string
	Err  error
}

// CommitResult reports the outcome of committing the staged set. A partial
// failure commits what it can; failed files remain staged.
type CommitResult struct {
	Committed []string
	Failed    []FileError
}

// StagingService detects working-directory changes, stages them, and turns
// the staged set into per-file commits.
type StagingService struct {
	st     *store.Store
	engine *vcs.Engine
	log    logging.Logger
}

// NewStagingService returns a staging service over the given store and
// engine.
func NewStagingService(st *store.Store, engine *vcs.Engine, log logging.Logger) *StagingService {
	return &StagingService{st: st, engine: engine, log: log}
}

// isEnvFileName reports whether a directory entry looks like an env file
// worth tracking.
func isEnvFileName(name string) bool {
	return name == ".env" || strings.HasPrefix(name, ".env.") || strings.HasSuffix(name, ".env")
}

// DetectChanges compares the project directory against the committed heads.
// Tracked files are reported as modified, missing, or unchanged; untracked
// env-looking files are reported as new. Trailing-whitespace-only edits do
// not count as modifications.
func (s *StagingService) DetectChanges(ctx context.Context, sess *models.Session, project *models.Project) ([]Change, error) {
	if !sess.LoggedIn() {
		return nil, fmt.Errorf("status requires a session: %w", common.ErrUnauthorized)
	}

	tracked, err := s.st.EnvFiles.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	var changes []Change
	trackedNames := make(map[string]bool, len(tracked))

	for i := range tracked {
		file := &tracked[i]
		trackedNames[file.Name] = true
		path := filepath.Join(project.DirectoryPath, file.Name)

		if !filex.Exists(path) {
			changes = append(changes, Change{Name: file.Name, State: FileMissing})
			continue
		}
		disk, err := filex.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if file.CurrentVersionID == "" {
			changes = append(changes, Change{Name: file.Name, State: FileNew, Plaintext: disk})
			continue
		}
		head, err := s.engine.HeadPlaintext(ctx, sess, file)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", file.Name, err)
		}
		if vcs.Changed(string(head), string(disk)) {
			changes = append(changes, Change{Name: file.Name, State: FileModified, Plaintext: disk})
		}
	}

	entries, err := os.ReadDir(project.DirectoryPath)
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || trackedNames[name] || !isEnvFileName(name) {
			continue
		}
		disk, err := filex.ReadFile(filepath.Join(project.DirectoryPath, name))
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{Name: name, State: FileNew, Plaintext: disk})
	}

	return changes, nil
}

// Stage records the given changes as the project's staged set, replacing any
// previous one. Missing-state changes cannot be staged.
func (s *StagingService) Stage(ctx context.Context, sess *models.Session, project *models.Project, changes []Change, message string) error {
	if !sess.LoggedIn() {
		return fmt.Errorf("stage requires a session: %w", common.ErrUnauthorized)
	}

	var files []models.StagedFile
	for _, ch := range changes {
		if ch.State == FileMissing || ch.State == FileUnchanged {
			continue
		}
		files = append(files, models.StagedFile{Name: ch.Name, Plaintext: ch.Plaintext})
	}
	if len(files) == 0 {
		return fmt.Errorf("nothing to stage: %w", common.ErrValidation)
	}

	return s.st.Staging.Upsert(ctx, &models.StagingRecord{
		ProjectID:     project.ID,
		UserEmail:     sess.Email,
		CommitMessage: message,
		Files:         files,
		CreatedAt:     time.Now().UTC(),
	})
}

// CommitStaged commits every staged file independently. Files the project
// has never seen get a row created first. A non-empty message overrides the
// one recorded at staging time. Failures do not abort the rest; failed
// files stay staged for a retry, successful ones are cleared.
func (s *StagingService) CommitStaged(ctx context.Context, sess *models.Session, project *models.Project, message string) (*CommitResult, error) {
	rec, err := s.st.Staging.Get(ctx, project.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("nothing staged: %w", common.ErrValidation)
		}
		return nil, err
	}
	if message != "" {
		rec.CommitMessage = message
	}

	result := &CommitResult{}
	var remaining []models.StagedFile

	for _, staged := range rec.Files {
		file, err := s.ensureFile(ctx, project, staged.Name)
		if err == nil {
			_, err = s.engine.Commit(ctx, sess, file, staged.Plaintext, rec.CommitMessage)
		}
		if err != nil {
			s.log.Warn(ctx, "commit failed", "file", staged.Name, "error", err)
			result.Failed = append(result.Failed, FileError{Name: staged.Name, Err: err})
			remaining = append(remaining, staged)
			continue
		}
		result.Committed = append(result.Committed, staged.Name)
	}

	if len(result.Committed) > 0 {
		if err := s.st.Projects.Touch(ctx, project.ID); err != nil {
			s.log.Warn(ctx, "failed to touch project", "project", project.Name, "error", err)
		}
	}

	if len(remaining) == 0 {
		if err := s.st.Staging.Clear(ctx, project.ID); err != nil {
			return result, err
		}
		return result, nil
	}
	rec.Files = remaining
	if err := s.st.Staging.Upsert(ctx, rec); err != nil {
		return result, err
	}
	return result, nil
}

// ensureFile returns the tracked file row, creating it on first commit.
func (s *StagingService) ensureFile(ctx context.Context, project *models.Project, name string) (*models.EnvFile, error) {
	file, err := s.st.EnvFiles.GetByName(ctx, project.ID, name)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	file = &models.EnvFile{
		ID: uuid.NewString(), ProjectID: project.ID, Name: name,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.st.EnvFiles.Create(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// Package vcs implements the version-control engine: commits, rollbacks,
// and log views over the linear version chain of each env file.
//
// Per file the state machine is NoHistory -> (commit) -> HasHead; every
// subsequent commit or rollback moves HasHead -> HasHead with a new head.
// The denormalized head content on the file row is an invariant maintained
// here and never written by any other component.
package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/client/repositories/envfiles"
	"github.com/mberzins/envault/internal/client/repositories/envversions"
	"github.com/mberzins/envault/internal/client/repositories/rollbacks"
	"github.com/mberzins/envault/internal/client/store"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/cryptox"
	"github.com/mberzins/envault/internal/dbx"
	"github.com/mberzins/envault/internal/filex"
	"github.com/mberzins/envault/internal/logging"
)

// Engine performs commit/rollback/log operations against the local store.
type Engine struct {
	st  *store.Store
	log logging.Logger
}

// NewEngine returns an engine bound to the given store.
func NewEngine(st *store.Store, log logging.Logger) *Engine {
	return &Engine{st: st, log: log}
}

// newVersionToken mints an opaque commit id.
func newVersionToken() (string, error) {
	return common.MakeRandHexString(16)
}

// Commit encrypts plaintext and appends a new version whose parent is the
// current head, updating the file's denormalized content and head pointer in
// the same transaction. The on-disk file is not rewritten: it is the source
// that was just read.
func (e *Engine) Commit(ctx context.Context, s *models.Session, file *models.EnvFile, plaintext []byte, message string) (*models.EnvVersion, error) {
	if !s.LoggedIn() {
		return nil, fmt.Errorf("commit requires a session: %w", common.ErrUnauthorized)
	}

	ciphertext, iv, tag, err := cryptox.Encrypt(plaintext, s.Email, s.EncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s: %w", file.Name, err)
	}

	token, err := newVersionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	version := &models.EnvVersion{
		ID:              uuid.NewString(),
		EnvFileID:       file.ID,
		VersionToken:    token,
		Content:         ciphertext,
		IV:              iv,
		AuthTag:         tag,
		CommitMessage:   message,
		AuthorEmail:     s.Email,
		ParentVersionID: file.CurrentVersionID,
		CreatedAt:       now,
	}

	err = dbx.WithTx(ctx, e.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := envversions.NewSQLiteRepository(tx).Create(ctx, version); err != nil {
			return err
		}
		return envfiles.NewSQLiteRepository(tx).UpdateHead(ctx, file.ID, ciphertext, iv, tag, version.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", file.Name, err)
	}

	file.Content = ciphertext
	file.IV = iv
	file.AuthTag = tag
	file.CurrentVersionID = version.ID
	file.UpdatedAt = now

	return version, nil
}

// Rollback restores the content of the version identified by targetToken.
// History is never mutated: the engine appends a rollback record
// (from = current head token, to = target token) and a new version that is a
// content-identical child of the current head, then best-effort rewrites the
// file at diskPath with the decrypted target content. A disk write failure
// is logged, not fatal: the store-level rollback has already succeeded.
func (e *Engine) Rollback(ctx context.Context, s *models.Session, file *models.EnvFile, targetToken, reason, diskPath string) (*models.EnvVersion, error) {
	if !s.LoggedIn() {
		return nil, fmt.Errorf("rollback requires a session: %w", common.ErrUnauthorized)
	}
	if file.CurrentVersionID == "" {
		return nil, fmt.Errorf("file %s has no history: %w", file.Name, common.ErrNotFound)
	}

	target, err := e.st.EnvVersions.GetByToken(ctx, file.ID, targetToken)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", targetToken, err)
	}
	head, err := e.st.EnvVersions.GetByID(ctx, file.CurrentVersionID)
	if err != nil {
		return nil, fmt.Errorf("head version: %w", err)
	}

	plaintext, err := cryptox.Decrypt(target.Content, target.IV, target.AuthTag, s.Email, s.EncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("decrypt version %s: %w", targetToken, err)
	}

	// Re-encrypt with a fresh IV rather than duplicating the target's
	// ciphertext; IVs are never reused across versions.
	ciphertext, iv, tag, err := cryptox.Encrypt(plaintext, s.Email, s.EncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s: %w", file.Name, err)
	}

	token, err := newVersionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	version := &models.EnvVersion{
		ID:              uuid.NewString(),
		EnvFileID:       file.ID,
		VersionToken:    token,
		Content:         ciphertext,
		IV:              iv,
		AuthTag:         tag,
		CommitMessage:   fmt.Sprintf("rollback to %s", targetToken),
		AuthorEmail:     s.Email,
		ParentVersionID: head.ID,
		CreatedAt:       now,
	}
	record := &models.RollbackRecord{
		ID:               uuid.NewString(),
		EnvFileID:        file.ID,
		FromVersionToken: head.VersionToken,
		ToVersionToken:   target.VersionToken,
		Reason:           reason,
		PerformedBy:      s.Email,
		CreatedAt:        now,
	}

	err = dbx.WithTx(ctx, e.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := rollbacks.NewSQLiteRepository(tx).Create(ctx, record); err != nil {
			return err
		}
		if err := envversions.NewSQLiteRepository(tx).Create(ctx, version); err != nil {
			return err
		}
		return envfiles.NewSQLiteRepository(tx).UpdateHead(ctx, file.ID, ciphertext, iv, tag, version.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("rollback %s: %w", file.Name, err)
	}

	file.Content = ciphertext
	file.IV = iv
	file.AuthTag = tag
	file.CurrentVersionID = version.ID
	file.UpdatedAt = now

	if diskPath != "" {
		if werr := filex.WriteFile(diskPath, plaintext); werr != nil {
			e.log.Warn(ctx, "rollback committed but disk write failed",
				"file", file.Name, "path", diskPath, "error", werr)
		}
	}

	return version, nil
}

// Log returns all versions across all files of the project, newest first,
// annotated with the owning file's name.
func (e *Engine) Log(ctx context.Context, projectID string) ([]envversions.VersionWithFile, error) {
	return e.st.EnvVersions.ListByProject(ctx, projectID)
}

// HeadPlaintext decrypts the file's denormalized head content. A file with
// no history returns common.ErrNotFound.
func (e *Engine) HeadPlaintext(ctx context.Context, s *models.Session, file *models.EnvFile) ([]byte, error) {
	if file.CurrentVersionID == "" {
		return nil, fmt.Errorf("file %s has no history: %w", file.Name, common.ErrNotFound)
	}
	return cryptox.Decrypt(file.Content, file.IV, file.AuthTag, s.Email, s.EncryptionSalt)
}

// Package store wires the local SQLite database: schema migrations,
// repository construction, and the multi-table deletions that must stay
// atomic.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mberzins/envault/internal/client/migrations"
	"github.com/mberzins/envault/internal/client/repositories/envfiles"
	"github.com/mberzins/envault/internal/client/repositories/envversions"
	"github.com/mberzins/envault/internal/client/repositories/pendingops"
	"github.com/mberzins/envault/internal/client/repositories/projects"
	"github.com/mberzins/envault/internal/client/repositories/rollbacks"
	"github.com/mberzins/envault/internal/client/repositories/session"
	"github.com/mberzins/envault/internal/client/repositories/staging"
	"github.com/mberzins/envault/internal/client/repositories/users"
	"github.com/mberzins/envault/internal/dbx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store bundles the open database with the per-entity repositories bound to
// it.
type Store struct {
	DB *sql.DB

	Users       users.Repository
	Projects    projects.Repository
	EnvFiles    envfiles.Repository
	EnvVersions envversions.Repository
	Rollbacks   rollbacks.Repository
	PendingOps  pendingops.Repository
	Staging     staging.Repository
	Session     session.Repository
}

// gooseUpContext is a seam for testing the migration failure path.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations. Migrations are
// additive and idempotent: re-running them against an already-migrated
// database is a no-op and older databases only gain columns and tables.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

// baselineSchema is the minimal safe schema applied when migrations fail,
// so the store is never left partially migrated and the CLI stays usable.
const baselineSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL,
	encryption_salt BLOB NOT NULL, created_at TIMESTAMP NOT NULL);
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY, user_id TEXT NOT NULL, name TEXT NOT NULL,
	directory_path TEXT NOT NULL DEFAULT '', created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL, UNIQUE (user_id, name));
CREATE TABLE IF NOT EXISTS env_files (
	id TEXT PRIMARY KEY, project_id TEXT NOT NULL, name TEXT NOT NULL,
	content BLOB, iv BLOB, auth_tag BLOB, current_version_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL, UNIQUE (project_id, name));
CREATE TABLE IF NOT EXISTS env_versions (
	id TEXT PRIMARY KEY, env_file_id TEXT NOT NULL, version_token TEXT NOT NULL,
	content BLOB, iv BLOB, auth_tag BLOB, commit_message TEXT NOT NULL DEFAULT '',
	author_email TEXT NOT NULL DEFAULT '', parent_version_id TEXT NOT NULL DEFAULT '',
	synced_to_server INTEGER NOT NULL DEFAULT 0, created_at TIMESTAMP NOT NULL,
	UNIQUE (env_file_id, version_token));
CREATE TABLE IF NOT EXISTS rollback_records (
	id TEXT PRIMARY KEY, env_file_id TEXT NOT NULL, from_version_token TEXT NOT NULL,
	to_version_token TEXT NOT NULL, reason TEXT NOT NULL DEFAULT '',
	performed_by TEXT NOT NULL DEFAULT '', synced_to_server INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL);
CREATE TABLE IF NOT EXISTS pending_operations (
	id TEXT PRIMARY KEY, operation_type TEXT NOT NULL, entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL, payload BLOB NOT NULL, created_at TIMESTAMP NOT NULL);
CREATE TABLE IF NOT EXISTS staging (
	project_id TEXT PRIMARY KEY, user_email TEXT NOT NULL,
	commit_message TEXT NOT NULL DEFAULT '', files BLOB NOT NULL, created_at TIMESTAMP NOT NULL);
CREATE TABLE IF NOT EXISTS session (key TEXT PRIMARY KEY, value BLOB);
`

// dbFileDir returns the parent directory to create for a plain file DSN.
// URI and in-memory DSNs have no directory of ours to create.
func dbFileDir(dsn string) string {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return ""
	}
	if dir := filepath.Dir(dsn); dir != "." && dir != "/" {
		return dir
	}
	return ""
}

// Open opens (creating if needed) the local database at dsn, applies
// migrations, and returns the bound repositories. On a fresh machine the
// state directory holding the database does not exist yet; it is created
// here, unreadable to other users.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dir := dbFileDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		// Fall back to the baseline schema rather than leaving the store
		// partially migrated.
		if _, execErr := db.ExecContext(ctx, baselineSchema); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("migrations failed (%v) and baseline schema failed: %w", err, execErr)
		}
	}

	return &Store{
		DB:          db,
		Users:       users.NewSQLiteRepository(db),
		Projects:    projects.NewSQLiteRepository(db),
		EnvFiles:    envfiles.NewSQLiteRepository(db),
		EnvVersions: envversions.NewSQLiteRepository(db),
		Rollbacks:   rollbacks.NewSQLiteRepository(db),
		PendingOps:  pendingops.NewSQLiteRepository(db),
		Staging:     staging.NewSQLiteRepository(db),
		Session:     session.NewSQLiteRepository(db),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// DeleteEnvFile removes a file and its dependent rows in one transaction:
// rollback records, then versions, then the file itself. Any failure aborts
// the whole deletion.
func (s *Store) DeleteEnvFile(ctx context.Context, envFileID string) error {
	return dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := rollbacks.NewSQLiteRepository(tx).DeleteByFile(ctx, envFileID); err != nil {
			return err
		}
		if err := envversions.NewSQLiteRepository(tx).DeleteByFile(ctx, envFileID); err != nil {
			return err
		}
		return envfiles.NewSQLiteRepository(tx).Delete(ctx, envFileID)
	})
}

// DeleteProject removes a project and everything under it in one
// transaction.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	return dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fileRepo := envfiles.NewSQLiteRepository(tx)
		versionRepo := envversions.NewSQLiteRepository(tx)
		rollbackRepo := rollbacks.NewSQLiteRepository(tx)

		files, err := fileRepo.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := rollbackRepo.DeleteByFile(ctx, f.ID); err != nil {
				return err
			}
			if err := versionRepo.DeleteByFile(ctx, f.ID); err != nil {
				return err
			}
			if err := fileRepo.Delete(ctx, f.ID); err != nil {
				return err
			}
		}
		if err := staging.NewSQLiteRepository(tx).Clear(ctx, projectID); err != nil {
			return err
		}
		return projects.NewSQLiteRepository(tx).Delete(ctx, projectID)
	})
}

// ReplaceFileHistory swaps a file's entire version chain and rollback log
// for the given remote payload in one transaction, updating the denormalized
// head. Used by pull, which treats the remote as authoritative for the file.
func (s *Store) ReplaceFileHistory(ctx context.Context, file *FileHistory) error {
	return dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		versionRepo := envversions.NewSQLiteRepository(tx)
		rollbackRepo := rollbacks.NewSQLiteRepository(tx)
		fileRepo := envfiles.NewSQLiteRepository(tx)

		if err := rollbackRepo.DeleteByFile(ctx, file.EnvFileID); err != nil {
			return err
		}
		if err := versionRepo.DeleteByFile(ctx, file.EnvFileID); err != nil {
			return err
		}
		for i := range file.Versions {
			if err := versionRepo.Create(ctx, &file.Versions[i]); err != nil {
				return err
			}
		}
		for i := range file.Rollbacks {
			if err := rollbackRepo.Create(ctx, &file.Rollbacks[i]); err != nil {
				return err
			}
		}
		return fileRepo.UpdateHead(ctx, file.EnvFileID,
			file.Content, file.IV, file.AuthTag, file.CurrentVersionID, file.UpdatedAt)
	})
}

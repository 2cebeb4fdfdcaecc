package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/common"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesStateDirectory(t *testing.T) {
	// A clean machine has no ~/.envault yet; Open must create the parent
	// directory instead of failing on the first command.
	path := filepath.Join(t.TempDir(), ".envault", "envault.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = s.Users.GetByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := openTestStore(t)
	// A second run against the already-migrated database must be a no-op.
	require.NoError(t, RunMigrations(context.Background(), s.DB))
}

func TestOpen_FallsBackToBaselineSchema(t *testing.T) {
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("simulated migration failure")
	}
	t.Cleanup(func() { gooseUpContext = orig })

	dsn := fmt.Sprintf("file:store_fallback_%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// Baseline schema must be usable.
	err = s.Users.Create(context.Background(), &models.User{
		ID: uuid.NewString(), Email: "a@example.com", PasswordHash: "h",
		EncryptionSalt: []byte("salt"), CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func seedFileWithHistory(t *testing.T, s *Store) (projectID, fileID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	userID := uuid.NewString()
	require.NoError(t, s.Users.Create(ctx, &models.User{
		ID: userID, Email: uuid.NewString() + "@example.com", PasswordHash: "h",
		EncryptionSalt: []byte("salt"), CreatedAt: now,
	}))

	projectID = uuid.NewString()
	require.NoError(t, s.Projects.Create(ctx, &models.Project{
		ID: projectID, UserID: userID, Name: "demo", CreatedAt: now, UpdatedAt: now,
	}))

	fileID = uuid.NewString()
	require.NoError(t, s.EnvFiles.Create(ctx, &models.EnvFile{
		ID: fileID, ProjectID: projectID, Name: ".env", CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, s.EnvVersions.Create(ctx, &models.EnvVersion{
		ID: uuid.NewString(), EnvFileID: fileID, VersionToken: "tok1", CreatedAt: now,
	}))
	require.NoError(t, s.Rollbacks.Create(ctx, &models.RollbackRecord{
		ID: uuid.NewString(), EnvFileID: fileID, FromVersionToken: "tok1",
		ToVersionToken: "tok0", CreatedAt: now,
	}))
	return projectID, fileID
}

func TestDeleteEnvFile_Cascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	projectID, fileID := seedFileWithHistory(t, s)

	require.NoError(t, s.DeleteEnvFile(ctx, fileID))

	_, err := s.EnvFiles.GetByName(ctx, projectID, ".env")
	require.ErrorIs(t, err, common.ErrNotFound)

	versions, err := s.EnvVersions.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Empty(t, versions)

	recs, err := s.Rollbacks.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestDeleteProject_Cascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	projectID, fileID := seedFileWithHistory(t, s)

	require.NoError(t, s.DeleteProject(ctx, projectID))

	files, err := s.EnvFiles.ListByProject(ctx, projectID)
	require.NoError(t, err)
	require.Empty(t, files)

	versions, err := s.EnvVersions.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestReplaceFileHistory_WholesaleSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, fileID := seedFileWithHistory(t, s)
	now := time.Now().UTC()

	newHead := uuid.NewString()
	err := s.ReplaceFileHistory(ctx, &FileHistory{
		EnvFileID:        fileID,
		Content:          []byte("ct"),
		IV:               []byte("iv"),
		AuthTag:          []byte("tag"),
		CurrentVersionID: newHead,
		UpdatedAt:        now,
		Versions: []models.EnvVersion{
			{ID: uuid.NewString(), EnvFileID: fileID, VersionToken: "remote1", SyncedToServer: true, CreatedAt: now.Add(-time.Minute)},
			{ID: newHead, EnvFileID: fileID, VersionToken: "remote2", SyncedToServer: true, CreatedAt: now},
		},
		Rollbacks: []models.RollbackRecord{
			{ID: uuid.NewString(), EnvFileID: fileID, FromVersionToken: "remote2", ToVersionToken: "remote1", SyncedToServer: true, CreatedAt: now},
		},
	})
	require.NoError(t, err)

	versions, err := s.EnvVersions.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "remote1", versions[0].VersionToken)
	require.Equal(t, "remote2", versions[1].VersionToken)

	recs, err := s.Rollbacks.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "remote2", recs[0].FromVersionToken)
}

func TestUniqueConstraints_MapToDomainError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	userID := uuid.NewString()
	require.NoError(t, s.Users.Create(ctx, &models.User{
		ID: userID, Email: "dup@example.com", PasswordHash: "h",
		EncryptionSalt: []byte("salt"), CreatedAt: now,
	}))
	err := s.Users.Create(ctx, &models.User{
		ID: uuid.NewString(), Email: "dup@example.com", PasswordHash: "h",
		EncryptionSalt: []byte("salt"), CreatedAt: now,
	})
	require.ErrorIs(t, err, common.ErrConstraint)

	require.NoError(t, s.Projects.Create(ctx, &models.Project{
		ID: uuid.NewString(), UserID: userID, Name: "demo", CreatedAt: now, UpdatedAt: now,
	}))
	err = s.Projects.Create(ctx, &models.Project{
		ID: uuid.NewString(), UserID: userID, Name: "demo", CreatedAt: now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, common.ErrConstraint)
}

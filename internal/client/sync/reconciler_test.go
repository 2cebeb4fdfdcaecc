package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/client/remote"
	"github.com/mberzins/envault/internal/client/store"
	"github.com/mberzins/envault/internal/client/vcs"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/cryptox"
	"github.com/mberzins/envault/internal/logging"
	"github.com/stretchr/testify/require"
)

// fakeRemote records pushed payloads and fails selected methods.
type fakeRemote struct {
	errFor map[string]error

	files     []remote.RemoteFile
	upserts   []*remote.EnvFileUpsert
	versions  []*remote.VersionPush
	rollbacks []*remote.RollbackPush
	renames   []string
	deletes   []string
}

func (f *fakeRemote) fail(method string) error {
	if f.errFor == nil {
		return nil
	}
	return f.errFor[method]
}

func (f *fakeRemote) Register(ctx context.Context, email, password string, salt []byte) (*remote.TokenPair, error) {
	return &remote.TokenPair{}, nil
}

func (f *fakeRemote) Login(ctx context.Context, email, password string) (*remote.LoginResult, error) {
	return &remote.LoginResult{}, nil
}

func (f *fakeRemote) UpsertEnvFile(ctx context.Context, s *models.Session, req *remote.EnvFileUpsert) error {
	if err := f.fail("upsert"); err != nil {
		return err
	}
	f.upserts = append(f.upserts, req)
	return nil
}

func (f *fakeRemote) PushVersion(ctx context.Context, s *models.Session, req *remote.VersionPush) error {
	if err := f.fail("push_version"); err != nil {
		return err
	}
	f.versions = append(f.versions, req)
	return nil
}

func (f *fakeRemote) PushRollback(ctx context.Context, s *models.Session, req *remote.RollbackPush) error {
	if err := f.fail("push_rollback"); err != nil {
		return err
	}
	f.rollbacks = append(f.rollbacks, req)
	return nil
}

func (f *fakeRemote) ListProjectFiles(ctx context.Context, s *models.Session, projectName string) ([]remote.RemoteFile, error) {
	if err := f.fail("list_files"); err != nil {
		return nil, err
	}
	return f.files, nil
}

func (f *fakeRemote) RenameEnvFile(ctx context.Context, s *models.Session, projectName, oldName, newName string) error {
	if err := f.fail("rename"); err != nil {
		return err
	}
	f.renames = append(f.renames, oldName+"->"+newName)
	return nil
}

func (f *fakeRemote) DeleteEnvFile(ctx context.Context, s *models.Session, projectName, fileName string) error {
	if err := f.fail("delete_file"); err != nil {
		return err
	}
	f.deletes = append(f.deletes, projectName+"/"+fileName)
	return nil
}

func (f *fakeRemote) DeleteProject(ctx context.Context, s *models.Session, projectName string) error {
	if err := f.fail("delete_project"); err != nil {
		return err
	}
	f.deletes = append(f.deletes, projectName)
	return nil
}

type fixture struct {
	st         *store.Store
	remote     *fakeRemote
	reconciler *Reconciler
	engine     *vcs.Engine
	session    *models.Session
	project    *models.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:sync_test_%s?mode=memory&cache=shared", uuid.NewString())
	st, err := store.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	salt := cryptox.GenerateSalt()
	now := time.Now().UTC()

	user := &models.User{
		ID: uuid.NewString(), Email: "dev@example.com", PasswordHash: "h",
		EncryptionSalt: salt, CreatedAt: now,
	}
	require.NoError(t, st.Users.Create(ctx, user))

	project := &models.Project{
		ID: uuid.NewString(), UserID: user.ID, Name: "demo",
		DirectoryPath: t.TempDir(), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.Projects.Create(ctx, project))

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	fr := &fakeRemote{}
	return &fixture{
		st:         st,
		remote:     fr,
		reconciler: New(st, fr, log),
		engine:     vcs.NewEngine(st, log),
		session:    &models.Session{Email: user.Email, EncryptionSalt: salt, AccessToken: "tok"},
		project:    project,
	}
}

// commitFile creates a tracked file with one committed version.
func (f *fixture) commitFile(t *testing.T, name, content string) *models.EnvFile {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	file := &models.EnvFile{
		ID: uuid.NewString(), ProjectID: f.project.ID, Name: name,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.st.EnvFiles.Create(ctx, file))
	_, err := f.engine.Commit(ctx, f.session, file, []byte(content), "initial")
	require.NoError(t, err)
	return file
}

func TestSync_PushMarksHistorySynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.commitFile(t, ".env", "KEY=1\n")
	_, err := f.engine.Commit(ctx, f.session, file, []byte("KEY=2\n"), "bump")
	require.NoError(t, err)

	res, err := f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err)
	require.Equal(t, 1, res.PushedFiles)
	require.Equal(t, 2, res.PushedVersions)
	require.False(t, res.Queued)
	require.Len(t, f.remote.upserts, 1)
	require.Len(t, f.remote.versions, 2)

	unsynced, err := f.st.EnvVersions.ListUnsynced(ctx, file.ID)
	require.NoError(t, err)
	require.Empty(t, unsynced)

	// A second run pushes the file head but no versions.
	res, err = f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err)
	require.Equal(t, 0, res.PushedVersions)
}

func TestSync_PushDuplicateVersionStillMarksSynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.commitFile(t, ".env", "KEY=1\n")

	// The previous push landed but its ack was lost: the server already
	// holds the version and answers with a duplicate. The local row must
	// still flip to synced so it is not re-pushed forever.
	f.remote.errFor = map[string]error{"push_version": common.ErrConstraint}

	res := &Result{}
	require.NoError(t, f.reconciler.Push(ctx, f.session, f.project, res))
	require.Equal(t, 1, res.PushedFiles)
	require.Equal(t, 1, res.PushedVersions)
	require.Empty(t, res.FileErrors)

	unsynced, err := f.st.EnvVersions.ListUnsynced(ctx, file.ID)
	require.NoError(t, err)
	require.Empty(t, unsynced)

	// The next run has nothing left to push.
	f.remote.errFor = nil
	res = &Result{}
	require.NoError(t, f.reconciler.Push(ctx, f.session, f.project, res))
	require.Equal(t, 0, res.PushedVersions)
	require.Empty(t, f.remote.versions)
}

func TestSync_PushDuplicateRollbackStillMarksSynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.commitFile(t, ".env", "KEY=1\n")
	v1, err := f.st.EnvVersions.GetByID(ctx, file.CurrentVersionID)
	require.NoError(t, err)
	_, err = f.engine.Commit(ctx, f.session, file, []byte("KEY=2\n"), "bump")
	require.NoError(t, err)
	_, err = f.engine.Rollback(ctx, f.session, file, v1.VersionToken, "bad", "")
	require.NoError(t, err)

	f.remote.errFor = map[string]error{"push_rollback": common.ErrConstraint}

	res := &Result{}
	require.NoError(t, f.reconciler.Push(ctx, f.session, f.project, res))
	require.Empty(t, res.FileErrors)

	records, err := f.st.Rollbacks.ListUnsynced(ctx, file.ID)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSync_PushIncludesRollbackRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.commitFile(t, ".env", "KEY=1\n")
	v1, err := f.st.EnvVersions.GetByID(ctx, file.CurrentVersionID)
	require.NoError(t, err)
	_, err = f.engine.Commit(ctx, f.session, file, []byte("KEY=2\n"), "bump")
	require.NoError(t, err)
	_, err = f.engine.Rollback(ctx, f.session, file, v1.VersionToken, "bad", "")
	require.NoError(t, err)

	res, err := f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err)
	require.Equal(t, 1, res.PushedRollbacks)
	require.Len(t, f.remote.rollbacks, 1)
	require.Equal(t, v1.VersionToken, f.remote.rollbacks[0].ToToken)
}

func TestSync_OfflineQueuesExactlyOneSyncOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitFile(t, ".env", "KEY=1\n")

	f.remote.errFor = map[string]error{"upsert": common.ErrConnectivity, "list_files": common.ErrConnectivity}

	res, err := f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err, "offline sync is not an error")
	require.True(t, res.Queued)

	// Running sync again while still offline does not queue a second op.
	// The queued SYNC itself fails to replay and stays put.
	_, err = f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.OperationSync, ops[0].Type)
}

func TestSync_QueuedSyncReplaysWhenBackOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	file := f.commitFile(t, ".env", "KEY=1\n")

	f.remote.errFor = map[string]error{"upsert": common.ErrConnectivity, "list_files": common.ErrConnectivity}
	_, err := f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err)

	f.remote.errFor = nil
	res, err := f.reconciler.Sync(ctx, f.session, f.project)
	require.NoError(t, err)
	require.Equal(t, 1, res.Replayed)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, ops)

	unsynced, err := f.st.EnvVersions.ListUnsynced(ctx, file.ID)
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestSync_ReplaysRenameAndDeleteOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enqueue := func(opType models.OperationType, at time.Time, payload any) {
		data, err := models.EncodePayload(payload)
		require.NoError(t, err)
		require.NoError(t, f.st.PendingOps.Create(ctx, &models.PendingOperation{
			ID: uuid.NewString(), Type: opType, EntityType: models.EntityEnvFile,
			EntityID: uuid.NewString(), Payload: data, CreatedAt: at,
		}))
	}
	now := time.Now().UTC()
	enqueue(models.OperationRename, now.Add(-2*time.Minute),
		models.RenamePayload{ProjectName: "demo", OldName: ".env", NewName: ".env.local"})
	enqueue(models.OperationDelete, now.Add(-time.Minute),
		models.DeletePayload{ProjectName: "demo", FileName: ".env.old"})

	res := &Result{}
	require.NoError(t, f.reconciler.ReplayPending(ctx, f.session, res))
	require.Equal(t, 2, res.Replayed)
	require.Equal(t, []string{".env->.env.local"}, f.remote.renames)
	require.Equal(t, []string{"demo/.env.old"}, f.remote.deletes)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, ops)
}

func TestSync_ReplayRemoteNotFoundClearsOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data, err := models.EncodePayload(models.DeletePayload{ProjectName: "demo", FileName: ".env"})
	require.NoError(t, err)
	require.NoError(t, f.st.PendingOps.Create(ctx, &models.PendingOperation{
		ID: uuid.NewString(), Type: models.OperationDelete, EntityType: models.EntityEnvFile,
		EntityID: uuid.NewString(), Payload: data, CreatedAt: time.Now().UTC(),
	}))

	f.remote.errFor = map[string]error{"delete_file": common.ErrNotFound}
	res := &Result{}
	require.NoError(t, f.reconciler.ReplayPending(ctx, f.session, res))
	require.Equal(t, 1, res.Replayed)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, ops)
}

func TestSync_AuthExpiredAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitFile(t, ".env", "KEY=1\n")

	f.remote.errFor = map[string]error{"upsert": common.ErrAuthExpired}
	_, err := f.reconciler.Sync(ctx, f.session, f.project)
	require.ErrorIs(t, err, common.ErrAuthExpired)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, ops, "auth failures do not queue")
}

// remoteFile builds a pulled file with a two-version history encrypted for
// the fixture's session.
func (f *fixture) remoteFile(t *testing.T, name string, updatedAt time.Time, contents ...string) remote.RemoteFile {
	t.Helper()
	rf := remote.RemoteFile{
		FileName:  name,
		CreatedAt: updatedAt.Add(-time.Hour),
		UpdatedAt: updatedAt,
	}
	for i, content := range contents {
		ct, iv, tag, err := cryptox.Encrypt([]byte(content), f.session.Email, f.session.EncryptionSalt)
		require.NoError(t, err)
		rf.Versions = append(rf.Versions, remote.RemoteVersion{
			VersionToken:     fmt.Sprintf("remote-%s-%d", name, i),
			EncryptedContent: ct, IV: iv, Tag: tag,
			AuthorEmail: f.session.Email,
			CreatedAt:   updatedAt.Add(time.Duration(i-len(contents)) * time.Minute),
		})
		if i == len(contents)-1 {
			rf.EncryptedContent, rf.IV, rf.Tag = ct, iv, tag
		}
	}
	return rf
}

func TestSync_PullAdoptsUnknownFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.files = []remote.RemoteFile{
		f.remoteFile(t, ".env", time.Now().UTC(), "KEY=1\n", "KEY=2\n"),
	}

	res := &Result{}
	require.NoError(t, f.reconciler.Pull(ctx, f.session, f.project, res))
	require.Equal(t, 1, res.PulledFiles)

	file, err := f.st.EnvFiles.GetByName(ctx, f.project.ID, ".env")
	require.NoError(t, err)

	versions, err := f.st.EnvVersions.ListByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Empty(t, versions[0].ParentVersionID, "first pulled version is the root")
	require.Equal(t, versions[0].ID, versions[1].ParentVersionID, "ancestry rebuilt from order")
	require.Equal(t, versions[1].ID, file.CurrentVersionID)
	require.True(t, versions[0].SyncedToServer)

	data, err := os.ReadFile(filepath.Join(f.project.DirectoryPath, ".env"))
	require.NoError(t, err)
	require.Equal(t, "KEY=2\n", string(data))
}

func TestSync_PullLastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.commitFile(t, ".env", "LOCAL=1\n")
	diskPath := filepath.Join(f.project.DirectoryPath, ".env")
	require.NoError(t, os.WriteFile(diskPath, []byte("LOCAL=1\n"), 0o600))

	// Remote older than local: local wins, nothing changes.
	f.remote.files = []remote.RemoteFile{
		f.remoteFile(t, ".env", time.Now().UTC().Add(-time.Hour), "OLD=1\n"),
	}
	res := &Result{}
	require.NoError(t, f.reconciler.Pull(ctx, f.session, f.project, res))
	require.Equal(t, 0, res.PulledFiles)
	data, err := os.ReadFile(diskPath)
	require.NoError(t, err)
	require.Equal(t, "LOCAL=1\n", string(data))

	// Remote newer: remote wins, history replaced wholesale.
	f.remote.files = []remote.RemoteFile{
		f.remoteFile(t, ".env", time.Now().UTC().Add(time.Hour), "NEW=1\n", "NEW=2\n"),
	}
	res = &Result{}
	require.NoError(t, f.reconciler.Pull(ctx, f.session, f.project, res))
	require.Equal(t, 1, res.PulledFiles)

	versions, err := f.st.EnvVersions.ListByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "remote-.env-0", versions[0].VersionToken)

	data, err = os.ReadFile(diskPath)
	require.NoError(t, err)
	require.Equal(t, "NEW=2\n", string(data))
}

func TestSync_PullRestoresMissingDiskFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.commitFile(t, ".env", "KEY=1\n")
	// Tracked in the store but nothing on disk, and local is newer than
	// remote: restore from the local head.
	f.remote.files = []remote.RemoteFile{
		f.remoteFile(t, ".env", time.Now().UTC().Add(-time.Hour), "OLD=1\n"),
	}

	res := &Result{}
	require.NoError(t, f.reconciler.Pull(ctx, f.session, f.project, res))

	data, err := os.ReadFile(filepath.Join(f.project.DirectoryPath, ".env"))
	require.NoError(t, err)
	require.Equal(t, "KEY=1\n", string(data))
}

func TestSync_PullKeepsDiskOnlyFileContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// File exists on disk but was never tracked locally; remote knows it.
	diskPath := filepath.Join(f.project.DirectoryPath, ".env")
	require.NoError(t, os.WriteFile(diskPath, []byte("MINE=1\n"), 0o600))

	f.remote.files = []remote.RemoteFile{
		f.remoteFile(t, ".env", time.Now().UTC(), "THEIRS=1\n"),
	}

	res := &Result{}
	require.NoError(t, f.reconciler.Pull(ctx, f.session, f.project, res))
	require.Equal(t, 1, res.PulledFiles)

	// History imported, working file untouched.
	file, err := f.st.EnvFiles.GetByName(ctx, f.project.ID, ".env")
	require.NoError(t, err)
	versions, err := f.st.EnvVersions.ListByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	data, err := os.ReadFile(diskPath)
	require.NoError(t, err)
	require.Equal(t, "MINE=1\n", string(data))
}

func TestSync_PullIntegrityFailureIsPerFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := f.remoteFile(t, ".env", time.Now().UTC(), "KEY=1\n")
	bad := f.remoteFile(t, ".env.production", time.Now().UTC(), "KEY=1\n")
	bad.Tag[0] ^= 0xff
	f.remote.files = []remote.RemoteFile{bad, good}

	res := &Result{}
	require.NoError(t, f.reconciler.Pull(ctx, f.session, f.project, res))
	require.Equal(t, 1, res.PulledFiles, "good file still pulled")
	require.Len(t, res.FileErrors, 1)
	require.Equal(t, ".env.production", res.FileErrors[0].Name)
	require.ErrorIs(t, res.FileErrors[0].Err, common.ErrIntegrity)

	// The tampered file never touched the store.
	_, err := f.st.EnvFiles.GetByName(ctx, f.project.ID, ".env.production")
	require.ErrorIs(t, err, common.ErrNotFound)
}

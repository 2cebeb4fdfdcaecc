package services

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

// fakeRemote records calls and fails with err when set. A non-nil rotate
// simulates the transport refreshing an expired token pair in place during
// an authenticated call.
type fakeRemote struct {
	err    error
	calls  []string
	salt   []byte
	rotate *remote.TokenPair
}

func (f *fakeRemote) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeRemote) maybeRotate(s *models.Session) {
	if f.rotate != nil && s != nil {
		s.AccessToken = f.rotate.AccessToken
		s.RefreshToken = f.rotate.RefreshToken
	}
}

func (f *fakeRemote) Register(ctx context.Context, email, password string, salt []byte) (*remote.TokenPair, error) {
	if err := f.record("register"); err != nil {
		return nil, err
	}
	return &remote.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeRemote) Login(ctx context.Context, email, password string) (*remote.LoginResult, error) {
	if err := f.record("login"); err != nil {
		return nil, err
	}
	return &remote.LoginResult{
		TokenPair:      remote.TokenPair{AccessToken: "a", RefreshToken: "r"},
		EncryptionSalt: f.salt,
	}, nil
}

func (f *fakeRemote) UpsertEnvFile(ctx context.Context, s *models.Session, req *remote.EnvFileUpsert) error {
	return f.record("upsert")
}

func (f *fakeRemote) PushVersion(ctx context.Context, s *models.Session, req *remote.VersionPush) error {
	return f.record("push_version")
}

func (f *fakeRemote) PushRollback(ctx context.Context, s *models.Session, req *remote.RollbackPush) error {
	return f.record("push_rollback")
}

func (f *fakeRemote) ListProjectFiles(ctx context.Context, s *models.Session, projectName string) ([]remote.RemoteFile, error) {
	if err := f.record("list_files"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeRemote) RenameEnvFile(ctx context.Context, s *models.Session, projectName, oldName, newName string) error {
	f.maybeRotate(s)
	return f.record("rename")
}

func (f *fakeRemote) DeleteEnvFile(ctx context.Context, s *models.Session, projectName, fileName string) error {
	f.maybeRotate(s)
	return f.record("delete_file")
}

func (f *fakeRemote) DeleteProject(ctx context.Context, s *models.Session, projectName string) error {
	f.maybeRotate(s)
	return f.record("delete_project")
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixture struct {
	st       *store.Store
	remote   *fakeRemote
	auth     *AuthService
	projects *ProjectService
	staging  *StagingService
	engine   *vcs.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:services_test_%s?mode=memory&cache=shared", uuid.NewString())
	st, err := store.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fr := &fakeRemote{salt: cryptox.GenerateSalt()}
	log := testLogger()
	engine := vcs.NewEngine(st, log)
	return &fixture{
		st:       st,
		remote:   fr,
		auth:     NewAuthService(st, fr, log),
		projects: NewProjectService(st, fr, log),
		staging:  NewStagingService(st, engine, log),
		engine:   engine,
	}
}

func (f *fixture) login(t *testing.T) *models.Session {
	t.Helper()
	sess, err := f.auth.Register(context.Background(), "dev@example.com", "password123")
	require.NoError(t, err)
	return sess
}

func (f *fixture) initProject(t *testing.T, sess *models.Session) *models.Project {
	t.Helper()
	project, err := f.projects.Init(context.Background(), sess, "demo", t.TempDir())
	require.NoError(t, err)
	return project
}

func TestAuth_RegisterMirrorsLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.auth.Register(ctx, "dev@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, "dev@example.com", sess.Email)
	require.NotEmpty(t, sess.EncryptionSalt)
	require.Equal(t, "a", sess.AccessToken)

	user, err := f.st.Users.GetByEmail(ctx, "dev@example.com")
	require.NoError(t, err)
	require.Equal(t, sess.EncryptionSalt, user.EncryptionSalt)
	require.True(t, cryptox.VerifyPassword("password123", user.PasswordHash))

	loaded, err := f.auth.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.Email, loaded.Email)
}

func TestAuth_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "not-an-email", "password123")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = f.auth.Register(ctx, "dev@example.com", "short")
	require.ErrorIs(t, err, common.ErrValidation)
	require.Empty(t, f.remote.calls, "nothing hits the server on bad input")
}

func TestAuth_OfflineLoginFallsBackToLocalMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t)

	f.remote.err = common.ErrConnectivity
	sess, err := f.auth.Login(ctx, "dev@example.com", "password123")
	require.NoError(t, err)
	require.Empty(t, sess.AccessToken, "offline session carries no tokens")
	require.NotEmpty(t, sess.EncryptionSalt)

	_, err = f.auth.Login(ctx, "dev@example.com", "wrongpassword")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestAuth_OfflineLoginWithoutMirror(t *testing.T) {
	f := newFixture(t)
	f.remote.err = common.ErrConnectivity

	_, err := f.auth.Login(context.Background(), "new@example.com", "password123")
	require.ErrorIs(t, err, common.ErrConnectivity)
}

func TestProjects_InitAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)

	dir := t.TempDir()
	project, err := f.projects.Init(ctx, sess, "demo", dir)
	require.NoError(t, err)

	resolved, err := f.projects.Resolve(ctx, sess, dir)
	require.NoError(t, err)
	require.Equal(t, project.ID, resolved.ID)

	_, err = f.projects.Resolve(ctx, sess, t.TempDir())
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.projects.Init(ctx, sess, "demo", t.TempDir())
	require.ErrorIs(t, err, common.ErrConstraint, "project names are unique per user")
}

func TestStaging_DetectChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)
	project := f.initProject(t, sess)

	// Untracked file on disk.
	path := filepath.Join(project.DirectoryPath, ".env")
	require.NoError(t, os.WriteFile(path, []byte("KEY=1\n"), 0o600))

	changes, err := f.staging.DetectChanges(ctx, sess, project)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, FileNew, changes[0].State)

	// Stage and commit, then the tree is clean.
	require.NoError(t, f.staging.Stage(ctx, sess, project, changes, "initial"))
	res, err := f.staging.CommitStaged(ctx, sess, project, "")
	require.NoError(t, err)
	require.Equal(t, []string{".env"}, res.Committed)
	require.Empty(t, res.Failed)

	changes, err = f.staging.DetectChanges(ctx, sess, project)
	require.NoError(t, err)
	require.Empty(t, changes)

	// Trailing whitespace churn is not a change.
	require.NoError(t, os.WriteFile(path, []byte("KEY=1   \n\n"), 0o600))
	changes, err = f.staging.DetectChanges(ctx, sess, project)
	require.NoError(t, err)
	require.Empty(t, changes)

	// A real edit is.
	require.NoError(t, os.WriteFile(path, []byte("KEY=2\n"), 0o600))
	changes, err = f.staging.DetectChanges(ctx, sess, project)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, FileModified, changes[0].State)

	// A deleted tracked file shows as missing.
	require.NoError(t, os.Remove(path))
	changes, err = f.staging.DetectChanges(ctx, sess, project)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, FileMissing, changes[0].State)
}

func TestStaging_CommitWithNothingStaged(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	project := f.initProject(t, sess)

	_, err := f.staging.CommitStaged(context.Background(), sess, project, "")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestStaging_StageOverwritesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)
	project := f.initProject(t, sess)

	first := []Change{{Name: ".env", State: FileNew, Plaintext: []byte("A=1\n")}}
	require.NoError(t, f.staging.Stage(ctx, sess, project, first, "one"))

	second := []Change{{Name: ".env.production", State: FileNew, Plaintext: []byte("B=2\n")}}
	require.NoError(t, f.staging.Stage(ctx, sess, project, second, "two"))

	rec, err := f.st.Staging.Get(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, rec.Files, 1)
	require.Equal(t, ".env.production", rec.Files[0].Name)
	require.Equal(t, "two", rec.CommitMessage)
}

func TestProjects_RenameQueuesWhenOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)
	project := f.initProject(t, sess)

	changes := []Change{{Name: ".env", State: FileNew, Plaintext: []byte("A=1\n")}}
	require.NoError(t, f.staging.Stage(ctx, sess, project, changes, ""))
	_, err := f.staging.CommitStaged(ctx, sess, project, "")
	require.NoError(t, err)

	f.remote.err = common.ErrConnectivity
	require.NoError(t, f.projects.RenameFile(ctx, sess, project, ".env", ".env.local"))

	// Local rename landed.
	_, err = f.st.EnvFiles.GetByName(ctx, project.ID, ".env.local")
	require.NoError(t, err)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.OperationRename, ops[0].Type)

	payload, err := ops[0].DecodePayload()
	require.NoError(t, err)
	require.Equal(t, models.RenamePayload{
		ProjectName: "demo", OldName: ".env", NewName: ".env.local",
	}, payload)
}

func TestProjects_RemoveFileCascadesAndQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)
	project := f.initProject(t, sess)

	changes := []Change{{Name: ".env", State: FileNew, Plaintext: []byte("A=1\n")}}
	require.NoError(t, f.staging.Stage(ctx, sess, project, changes, ""))
	_, err := f.staging.CommitStaged(ctx, sess, project, "")
	require.NoError(t, err)
	file, err := f.st.EnvFiles.GetByName(ctx, project.ID, ".env")
	require.NoError(t, err)

	f.remote.err = common.ErrConnectivity
	require.NoError(t, f.projects.RemoveFile(ctx, sess, project, ".env"))

	_, err = f.st.EnvFiles.GetByName(ctx, project.ID, ".env")
	require.ErrorIs(t, err, common.ErrNotFound)
	versions, err := f.st.EnvVersions.ListByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Empty(t, versions)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.OperationDelete, ops[0].Type)
	require.Equal(t, models.EntityEnvFile, ops[0].EntityType)
}

func TestProjects_PersistRotatedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)
	project := f.initProject(t, sess)

	changes := []Change{{Name: ".env", State: FileNew, Plaintext: []byte("A=1\n")}}
	require.NoError(t, f.staging.Stage(ctx, sess, project, changes, ""))
	_, err := f.staging.CommitStaged(ctx, sess, project, "")
	require.NoError(t, err)

	// The transport rotates the pair in place during the call; the server
	// deletes the old refresh token, so the stored session must follow.
	f.remote.rotate = &remote.TokenPair{AccessToken: "a2", RefreshToken: "r2"}
	require.NoError(t, f.projects.RenameFile(ctx, sess, project, ".env", ".env.local"))

	loaded, err := f.auth.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", loaded.AccessToken)
	require.Equal(t, "r2", loaded.RefreshToken)

	// Rotation survives even when the retried request itself fails.
	f.remote.rotate = &remote.TokenPair{AccessToken: "a3", RefreshToken: "r3"}
	f.remote.err = common.ErrNotFound
	require.ErrorIs(t, f.projects.RemoveFile(ctx, sess, project, ".env.local"), common.ErrNotFound)

	loaded, err = f.auth.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "r3", loaded.RefreshToken)
}

func TestStaging_CommitTouchesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)

	user, err := f.st.Users.GetByEmail(ctx, sess.Email)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	project := &models.Project{
		ID: uuid.NewString(), UserID: user.ID, Name: "aged",
		DirectoryPath: t.TempDir(), CreatedAt: past, UpdatedAt: past,
	}
	require.NoError(t, f.st.Projects.Create(ctx, project))

	changes := []Change{{Name: ".env", State: FileNew, Plaintext: []byte("A=1\n")}}
	require.NoError(t, f.staging.Stage(ctx, sess, project, changes, ""))
	_, err = f.staging.CommitStaged(ctx, sess, project, "")
	require.NoError(t, err)

	stored, err := f.st.Projects.GetByName(ctx, user.ID, "aged")
	require.NoError(t, err)
	require.True(t, stored.UpdatedAt.After(past), "commit bumps the project's updated_at")
}

func TestProjects_RemoveProjectQueuesWhenOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.login(t)
	project := f.initProject(t, sess)

	f.remote.err = common.ErrConnectivity
	require.NoError(t, f.projects.RemoveProject(ctx, sess, project))

	_, err := f.projects.ResolveByName(ctx, sess, "demo")
	require.ErrorIs(t, err, common.ErrNotFound)

	ops, err := f.st.PendingOps.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.EntityProject, ops[0].EntityType)
}

// Package remote defines the client-side boundary to the sync server:
// the request/response contracts and a Client interface the reconciler
// depends on.
package remote

import (
	"context"
	"time"

	"github.com/mberzins/envault/internal/client/models"
)

// TokenPair is the access/refresh token pair issued by the server.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult carries tokens plus the account's encryption salt so a fresh
// machine can derive content keys.
type LoginResult struct {
	TokenPair
	EncryptionSalt []byte `json:"encryption_salt"`
}

// EnvFileUpsert mirrors POST /env-files. Idempotent by (project, file_name).
type EnvFileUpsert struct {
	ProjectName      string    `json:"project_name"`
	FileName         string    `json:"file_name"`
	EncryptedContent []byte    `json:"encrypted_content"`
	IV               []byte    `json:"iv"`
	Tag              []byte    `json:"tag"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// VersionPush mirrors POST /env-versions. Insert-if-absent by
// (env_file, version_token).
type VersionPush struct {
	ProjectName      string    `json:"project_name"`
	FileName         string    `json:"file_name"`
	VersionToken     string    `json:"version_token"`
	EncryptedContent []byte    `json:"encrypted_content"`
	IV               []byte    `json:"iv"`
	Tag              []byte    `json:"tag"`
	CommitMessage    string    `json:"commit_message"`
	AuthorEmail      string    `json:"author_email"`
	CreatedAt        time.Time `json:"created_at"`
}

// RollbackPush mirrors POST /rollback-history. Insert-if-absent by
// (env_file, from_token, to_token, created_at).
type RollbackPush struct {
	ProjectName string    `json:"project_name"`
	FileName    string    `json:"file_name"`
	FromToken   string    `json:"from_token"`
	ToToken     string    `json:"to_token"`
	Reason      string    `json:"reason"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// RemoteVersion is one element of a pulled file's version array, oldest
// first. Ancestry is implied by order; the first element is the root.
type RemoteVersion struct {
	VersionToken     string    `json:"version_token"`
	EncryptedContent []byte    `json:"encrypted_content"`
	IV               []byte    `json:"iv"`
	Tag              []byte    `json:"tag"`
	CommitMessage    string    `json:"commit_message"`
	AuthorEmail      string    `json:"author_email"`
	CreatedAt        time.Time `json:"created_at"`
}

// RemoteRollback is one element of a pulled file's rollback array.
type RemoteRollback struct {
	FromToken   string    `json:"from_token"`
	ToToken     string    `json:"to_token"`
	Reason      string    `json:"reason"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// RemoteFile is one element of GET /projects/{name}/files: current encrypted
// content with the file's complete history embedded.
type RemoteFile struct {
	FileName         string           `json:"file_name"`
	EncryptedContent []byte           `json:"encrypted_content"`
	IV               []byte           `json:"iv"`
	Tag              []byte           `json:"tag"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Versions         []RemoteVersion  `json:"versions"`
	Rollbacks        []RemoteRollback `json:"rollbacks"`
}

// Client is the remote transport used by the sync reconciler. Methods taking
// a session may refresh its tokens in place (refresh-then-retry exactly once
// on an expired access token). Connectivity-class failures map to
// common.ErrConnectivity; a failed refresh maps to common.ErrAuthExpired.
type Client interface {
	Register(ctx context.Context, email, password string, salt []byte) (*TokenPair, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	UpsertEnvFile(ctx context.Context, s *models.Session, req *EnvFileUpsert) error
	PushVersion(ctx context.Context, s *models.Session, req *VersionPush) error
	PushRollback(ctx context.Context, s *models.Session, req *RollbackPush) error
	ListProjectFiles(ctx context.Context, s *models.Session, projectName string) ([]RemoteFile, error)
	RenameEnvFile(ctx context.Context, s *models.Session, projectName, oldName, newName string) error
	DeleteEnvFile(ctx context.Context, s *models.Session, projectName, fileName string) error
	DeleteProject(ctx context.Context, s *models.Session, projectName string) error
}

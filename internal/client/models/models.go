// Package models defines client-side data models persisted in the local
// store and exchanged with the remote server.
package models

import "time"

// User is a local account. EncryptionSalt is generated once at creation and
// never rotated: it seeds every content key the user will ever derive.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	EncryptionSalt []byte
	CreatedAt      time.Time
}

// Project groups env files. DirectoryPath is used to auto-select the active
// project when running commands inside that directory. (UserID, Name) is
// unique.
type Project struct {
	ID            string
	UserID        string
	Name          string
	DirectoryPath string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EnvFile is a tracked secret file. Content/IV/AuthTag hold a denormalized
// copy of the encrypted head version, kept in sync by every commit and
// rollback. CurrentVersionID points at the head of the version chain; empty
// until the first commit.
type EnvFile struct {
	ID               string
	ProjectID        string
	Name             string
	Content          []byte
	IV               []byte
	AuthTag          []byte
	CurrentVersionID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EnvVersion is an immutable snapshot in a file's singly-linked ancestry
// chain. VersionToken is the opaque commit id. ParentVersionID is empty for
// the root version. Content fields never change once created.
type EnvVersion struct {
	ID              string
	EnvFileID       string
	VersionToken    string
	Content         []byte
	IV              []byte
	AuthTag         []byte
	CommitMessage   string
	AuthorEmail     string
	ParentVersionID string
	SyncedToServer  bool
	CreatedAt       time.Time
}

// RollbackRecord is an append-only log entry. Rollback never mutates
// history: it creates a new version whose content equals the target's,
// linked as a child of the version that was current before the rollback.
type RollbackRecord struct {
	ID               string
	EnvFileID        string
	FromVersionToken string
	ToVersionToken   string
	Reason           string
	PerformedBy      string
	SyncedToServer   bool
	CreatedAt        time.Time
}

// Session is the active identity, loaded once per invocation and passed
// explicitly into every component call so tests can inject arbitrary
// sessions.
type Session struct {
	Email          string
	EncryptionSalt []byte
	AccessToken    string
	RefreshToken   string
}

// LoggedIn reports whether the session carries an identity.
func (s *Session) LoggedIn() bool {
	return s != nil && s.Email != ""
}

// StagedFile is one file selected for the next commit. Plaintext lives only
// in the transient staging record and is discarded after commit.
type StagedFile struct {
	Name      string `json:"name"`
	Plaintext []byte `json:"plaintext"`
}

// StagingRecord is the project-scoped working set queued for the next
// commit. At most one record is live per project; staging again overwrites
// it.
type StagingRecord struct {
	ProjectID     string
	UserEmail     string
	CommitMessage string
	Files         []StagedFile
	CreatedAt     time.Time
}

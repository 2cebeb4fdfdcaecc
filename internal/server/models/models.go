// Package models defines the server-side entities persisted in Postgres.
package models

import "time"

// User is a registered account. EncryptionSalt is stored so any machine the
// user logs in from can derive the same content keys; the server never holds
// derived keys or plaintext.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	EncryptionSalt []byte
	CreatedAt      time.Time
}

// Project groups env files per user. (UserID, Name) is unique.
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// EnvFile is the server copy of a tracked file: current encrypted content
// only, history lives in EnvVersion rows.
type EnvFile struct {
	ID        string
	ProjectID string
	Name      string
	Content   []byte
	IV        []byte
	AuthTag   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnvVersion is an immutable pushed snapshot. (EnvFileID, VersionToken) is
// unique, which makes version pushes idempotent.
type EnvVersion struct {
	ID            string
	EnvFileID     string
	VersionToken  string
	Content       []byte
	IV            []byte
	AuthTag       []byte
	CommitMessage string
	AuthorEmail   string
	CreatedAt     time.Time
}

// RollbackRecord is a pushed rollback log entry, idempotent by
// (EnvFileID, FromVersionToken, ToVersionToken, CreatedAt).
type RollbackRecord struct {
	ID               string
	EnvFileID        string
	FromVersionToken string
	ToVersionToken   string
	Reason           string
	PerformedBy      string
	CreatedAt        time.Time
}

// RefreshToken is an opaque server-stored token rotated on every refresh.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

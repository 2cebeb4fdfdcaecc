// Package common defines shared constants and sentinel errors used across
// client and server layers of envault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound   = errors.New("not found")
	ErrConstraint = errors.New("already exists")

	// Validation errors (bad project/file name, malformed selection).
	ErrValidation = errors.New("validation error")

	// Crypto errors. ErrIntegrity means the authentication tag did not
	// verify: tampering, wrong key, or wrong owner email bound as AAD.
	ErrIntegrity = errors.New("integrity check failed")

	// Remote transport errors. ErrConnectivity covers unreachable hosts
	// and timeouts; the local operation still completes and the remote
	// effect is queued as a pending operation.
	ErrConnectivity = errors.New("server unavailable")
	ErrAuthExpired  = errors.New("session expired")
	ErrUnauthorized = errors.New("unauthorized")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrInvalidToken        = errors.New("invalid token")

	// Generic internal flow control.
	ErrInternal = errors.New("internal error")
)

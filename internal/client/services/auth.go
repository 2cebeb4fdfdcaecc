package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/client/remote"
	"github.com/mberzins/envault/internal/client/store"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/cryptox"
	"github.com/mberzins/envault/internal/logging"
)

const minPasswordLen = 8

// AuthService handles registration, login, and the persisted session.
type AuthService struct {
	st     *store.Store
	remote remote.Client
	log    logging.Logger
}

// NewAuthService returns an auth service over the given store and transport.
func NewAuthService(st *store.Store, rc remote.Client, log logging.Logger) *AuthService {
	return &AuthService{st: st, remote: rc, log: log}
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("invalid email %q: %w", email, common.ErrValidation)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, common.ErrValidation)
	}
	return nil
}

// Register creates the account on the server, mirrors it locally, and
// persists the resulting session. The encryption salt is generated here,
// once, and shipped to the server so other machines can fetch it at login.
func (a *AuthService) Register(ctx context.Context, email, password string) (*models.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	salt := cryptox.GenerateSalt()
	pair, err := a.remote.Register(ctx, email, password, salt)
	if err != nil {
		return nil, err
	}

	if err := a.ensureLocalUser(ctx, email, password, salt); err != nil {
		return nil, err
	}

	sess := &models.Session{
		Email:          email,
		EncryptionSalt: salt,
		AccessToken:    pair.AccessToken,
		RefreshToken:   pair.RefreshToken,
	}
	if err := a.st.Session.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Login authenticates against the server and persists the session. When the
// server is unreachable the login degrades to offline mode: the password is
// verified against the local mirror and the session carries no tokens, which
// is enough for every local operation.
func (a *AuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	res, err := a.remote.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, common.ErrConnectivity) {
			return a.loginOffline(ctx, email, password)
		}
		return nil, err
	}

	if err := a.ensureLocalUser(ctx, email, password, res.EncryptionSalt); err != nil {
		return nil, err
	}

	sess := &models.Session{
		Email:          email,
		EncryptionSalt: res.EncryptionSalt,
		AccessToken:    res.AccessToken,
		RefreshToken:   res.RefreshToken,
	}
	if err := a.st.Session.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (a *AuthService) loginOffline(ctx context.Context, email, password string) (*models.Session, error) {
	user, err := a.st.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("offline login needs a prior online login on this machine: %w", common.ErrConnectivity)
		}
		return nil, err
	}
	if !cryptox.VerifyPassword(password, user.PasswordHash) {
		return nil, common.ErrUnauthorized
	}

	a.log.Info(ctx, "server unreachable, logged in offline", "email", email)

	sess := &models.Session{Email: email, EncryptionSalt: user.EncryptionSalt}
	if err := a.st.Session.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ensureLocalUser mirrors the account into the local store so offline login
// and project ownership work without the server.
func (a *AuthService) ensureLocalUser(ctx context.Context, email, password string, salt []byte) error {
	_, err := a.st.Users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	return a.st.Users.Create(ctx, &models.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   hash,
		EncryptionSalt: salt,
		CreatedAt:      time.Now().UTC(),
	})
}

// CurrentSession loads the persisted session. A machine with no prior login
// returns common.ErrUnauthorized.
func (a *AuthService) CurrentSession(ctx context.Context) (*models.Session, error) {
	sess, err := a.st.Session.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.LoggedIn() {
		return nil, fmt.Errorf("not logged in: %w", common.ErrUnauthorized)
	}
	return sess, nil
}

// Logout clears the persisted session. Local data stays intact.
func (a *AuthService) Logout(ctx context.Context) error {
	return a.st.Session.Clear(ctx)
}

// Package services contains the server-side business logic between the HTTP
// layer and the repositories.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/cryptox"
	"github.com/mberzins/envault/internal/dbx"
	"github.com/mberzins/envault/internal/logging"
	"github.com/mberzins/envault/internal/server/auth"
	"github.com/mberzins/envault/internal/server/config"
	"github.com/mberzins/envault/internal/server/models"
	"github.com/mberzins/envault/internal/server/repositories/refreshtokens"
	"github.com/mberzins/envault/internal/server/repositories/users"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult carries the issued tokens plus the account's encryption salt so
// a fresh machine can derive the same content keys.
type LoginResult struct {
	TokenPair
	EncryptionSalt []byte
}

// UserService handles registration, login, and refresh token rotation.
type UserService struct {
	db              *sql.DB
	log             logging.Logger
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewUserService constructs a UserService from the server config.
func NewUserService(db *sql.DB, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:              db,
		log:             log,
		jwtSecret:       []byte(cfg.Auth.JWTSecret),
		accessTokenTTL:  cfg.Auth.AccessTokenTTL,
		refreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}
}

// Register creates an account with the client-supplied encryption salt and
// logs the new user straight in. A taken email maps to common.ErrConstraint.
func (s *UserService) Register(ctx context.Context, email, password string, salt []byte) (*TokenPair, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   hash,
		EncryptionSalt: salt,
		CreatedAt:      time.Now().UTC(),
	}
	if err := users.NewPostgresRepository(s.db).Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user registered", "email", email)
	return s.generateTokenPair(ctx, s.db, user.ID)
}

// Login verifies the credentials and mints a token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := users.NewPostgresRepository(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}
	if !cryptox.VerifyPassword(password, user.PasswordHash) {
		return nil, common.ErrUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{TokenPair: *pair, EncryptionSalt: user.EncryptionSalt}, nil
}

// Refresh validates a refresh token, rotates it transactionally, and returns
// a fresh pair. Expired tokens yield common.ErrRefreshTokenExpired.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := refreshtokens.NewPostgresRepository(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if token.ExpiresAt.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := refreshtokens.NewPostgresRepository(tx).Delete(ctx, refreshToken); err != nil {
			return err
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, tx, token.UserID)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, db dbx.DBTX, userID string) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	err = refreshtokens.NewPostgresRepository(db).Create(ctx, &models.RefreshToken{
		Token:     refresh,
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.refreshTokenTTL),
	})
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

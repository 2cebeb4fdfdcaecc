// Package httpapi exposes the server over authenticated JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/logging"
	"github.com/mberzins/envault/internal/server/auth"
	"github.com/mberzins/envault/internal/server/config"
	"github.com/mberzins/envault/internal/server/services"
)

// UserService is the authentication surface the handler needs.
type UserService interface {
	Register(ctx context.Context, email, password string, salt []byte) (*services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// VaultService is the vault surface the handler needs.
type VaultService interface {
	UpsertEnvFile(ctx context.Context, userID string, req *services.FilePush) error
	AddVersion(ctx context.Context, userID string, req *services.VersionPush) error
	AddRollback(ctx context.Context, userID string, req *services.RollbackPush) error
	ListProjectFiles(ctx context.Context, userID, projectName string) ([]services.FileWithHistory, error)
	RenameEnvFile(ctx context.Context, userID, projectName, oldName, newName string) error
	DeleteEnvFile(ctx context.Context, userID, projectName, fileName string) error
	DeleteProject(ctx context.Context, userID, projectName string) error
}

// Handler wires the HTTP routes to the services.
type Handler struct {
	users     UserService
	vault     VaultService
	jwtSecret []byte
	log       logging.Logger
}

// NewHandler constructs a Handler.
func NewHandler(users UserService, vault VaultService, cfg *config.Config, log logging.Logger) *Handler {
	return &Handler{
		users:     users,
		vault:     vault,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		log:       log,
	}
}

// Routes returns the server's route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", h.register)
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/refresh", h.refresh)

	mux.HandleFunc("POST /env-files", h.withAuth(h.upsertEnvFile))
	mux.HandleFunc("POST /env-files/rename", h.withAuth(h.renameEnvFile))
	mux.HandleFunc("DELETE /env-files", h.withAuth(h.deleteEnvFile))
	mux.HandleFunc("POST /env-versions", h.withAuth(h.pushVersion))
	mux.HandleFunc("POST /rollback-history", h.withAuth(h.pushRollback))
	mux.HandleFunc("GET /projects/{name}/files", h.withAuth(h.listProjectFiles))
	mux.HandleFunc("DELETE /projects", h.withAuth(h.deleteProject))

	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withAuth verifies the bearer token. An expired access token gets a 401 with
// the machine-readable "token expired" reason so clients know to refresh; any
// other failure is a plain 401.
func (h *Handler) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		userID, err := auth.GetUserIDFromToken(token, h.jwtSecret)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, common.TokenExpiredReason)
			} else {
				writeError(w, http.StatusUnauthorized, "unauthorized")
			}
			return
		}
		next(w, r, userID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the sentinel errors onto HTTP statuses. Anything
// unmatched is a 500 with a generic body; the detail goes to the log only.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrConstraint):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrRefreshTokenExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

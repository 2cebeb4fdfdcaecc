package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/common"
)

// defaultTimeout bounds every remote call. A timeout is treated exactly like
// a connectivity failure and triggers queuing rather than blocking the CLI.
const defaultTimeout = 5 * time.Second

// HTTPClient implements Client over authenticated JSON HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for the server at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// doJSON performs one request without any retry logic. A nil session sends
// no bearer token.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Unreachable host, refused connection, or timeout.
		return fmt.Errorf("%w: %v", common.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var er errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&er)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if er.Error == common.TokenExpiredReason {
			return common.ErrTokenExpired
		}
		return common.ErrUnauthorized
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", er.Error, common.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", er.Error, common.ErrConstraint)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", er.Error, common.ErrValidation)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", er.Error, common.ErrConnectivity)
	default:
		return fmt.Errorf("server returned %s: %s", resp.Status, er.Error)
	}
}

// doAuthed performs an authenticated request. On a 401 with the "token
// expired" reason it refreshes the session's tokens and retries exactly
// once; if the refresh itself fails, common.ErrAuthExpired is returned and
// the caller should clear the session and re-authenticate.
func (c *HTTPClient) doAuthed(ctx context.Context, s *models.Session, method, path string, body, out any) error {
	err := c.doJSON(ctx, method, path, s.AccessToken, body, out)
	if !errors.Is(err, common.ErrTokenExpired) {
		return err
	}

	if s.RefreshToken == "" {
		return common.ErrAuthExpired
	}

	var pair TokenPair
	refreshErr := c.doJSON(ctx, http.MethodPost, "/auth/refresh", "",
		map[string]string{"refresh_token": s.RefreshToken}, &pair)
	if refreshErr != nil {
		if errors.Is(refreshErr, common.ErrConnectivity) {
			return refreshErr
		}
		return fmt.Errorf("%w: %v", common.ErrAuthExpired, refreshErr)
	}

	s.AccessToken = pair.AccessToken
	s.RefreshToken = pair.RefreshToken

	err = c.doJSON(ctx, method, path, s.AccessToken, body, out)
	if errors.Is(err, common.ErrTokenExpired) {
		return common.ErrAuthExpired
	}
	return err
}

func (c *HTTPClient) Register(ctx context.Context, email, password string, salt []byte) (*TokenPair, error) {
	var pair TokenPair
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", map[string]any{
		"email":           email,
		"password":        password,
		"encryption_salt": salt,
	}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) UpsertEnvFile(ctx context.Context, s *models.Session, req *EnvFileUpsert) error {
	return c.doAuthed(ctx, s, http.MethodPost, "/env-files", req, nil)
}

func (c *HTTPClient) PushVersion(ctx context.Context, s *models.Session, req *VersionPush) error {
	return c.doAuthed(ctx, s, http.MethodPost, "/env-versions", req, nil)
}

func (c *HTTPClient) PushRollback(ctx context.Context, s *models.Session, req *RollbackPush) error {
	return c.doAuthed(ctx, s, http.MethodPost, "/rollback-history", req, nil)
}

func (c *HTTPClient) ListProjectFiles(ctx context.Context, s *models.Session, projectName string) ([]RemoteFile, error) {
	var out struct {
		Files []RemoteFile `json:"files"`
	}
	path := "/projects/" + url.PathEscape(projectName) + "/files"
	if err := c.doAuthed(ctx, s, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *HTTPClient) RenameEnvFile(ctx context.Context, s *models.Session, projectName, oldName, newName string) error {
	return c.doAuthed(ctx, s, http.MethodPost, "/env-files/rename", map[string]string{
		"project_name": projectName,
		"old_name":     oldName,
		"new_name":     newName,
	}, nil)
}

func (c *HTTPClient) DeleteEnvFile(ctx context.Context, s *models.Session, projectName, fileName string) error {
	return c.doAuthed(ctx, s, http.MethodDelete, "/env-files", map[string]string{
		"project_name": projectName,
		"file_name":    fileName,
	}, nil)
}

func (c *HTTPClient) DeleteProject(ctx context.Context, s *models.Session, projectName string) error {
	return c.doAuthed(ctx, s, http.MethodDelete, "/projects", map[string]string{
		"project_name": projectName,
	}, nil)
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mberzins/envault/internal/common"
)

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	EncryptionSalt []byte `json:"encryption_salt"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	tokenPairResponse
	EncryptionSalt []byte `json:"encryption_salt"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !strings.Contains(req.Email, "@") || req.Password == "" || len(req.EncryptionSalt) == 0 {
		writeError(w, http.StatusBadRequest, "email, password and encryption salt required")
		return
	}

	pair, err := h.users.Register(r.Context(), req.Email, req.Password, req.EncryptionSalt)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		tokenPairResponse: tokenPairResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		},
		EncryptionSalt: res.EncryptionSalt,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pair, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

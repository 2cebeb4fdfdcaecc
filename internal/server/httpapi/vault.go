package httpapi

import (
	"net/http"
	"time"

	"github.com/mberzins/envault/internal/server/services"
)

type envFileRequest struct {
	ProjectName      string    `json:"project_name"`
	FileName         string    `json:"file_name"`
	EncryptedContent []byte    `json:"encrypted_content"`
	IV               []byte    `json:"iv"`
	Tag              []byte    `json:"tag"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type versionRequest struct {
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

type rollbackRequest struct {
	ProjectName string    `json:"project_name"`
	FileName    string    `json:"file_name"`
	FromToken   string    `json:"from_token"`
	ToToken     string    `json:"to_token"`
	Reason      string    `json:"reason"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type renameRequest struct {
	ProjectName string `json:"project_name"`
	OldName     string `json:"old_name"`
	NewName     string `json:"new_name"`
}

type deleteFileRequest struct {
	ProjectName string `json:"project_name"`
	FileName    string `json:"file_name"`
}

type deleteProjectRequest struct {
	ProjectName string `json:"project_name"`
}

type versionResponse struct {
	VersionToken     string    `json:"version_token"`
	EncryptedContent []byte    `json:"encrypted_content"`
	IV               []byte    `json:"iv"`
	Tag              []byte    `json:"tag"`
	CommitMessage    string    `json:"commit_message"`
	AuthorEmail      string    `json:"author_email"`
	CreatedAt        time.Time `json:"created_at"`
}

type rollbackResponse struct {
	FromToken   string    `json:"from_token"`
	ToToken     string    `json:"to_token"`
	Reason      string    `json:"reason"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type fileResponse struct {
	FileName         string             `json:"file_name"`
	EncryptedContent []byte             `json:"encrypted_content"`
	IV               []byte             `json:"iv"`
	Tag              []byte             `json:"tag"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	Versions         []versionResponse  `json:"versions"`
	Rollbacks        []rollbackResponse `json:"rollbacks"`
}

type listFilesResponse struct {
	Files []fileResponse `json:"files"`
}

func (h *Handler) upsertEnvFile(w http.ResponseWriter, r *http.Request, userID string) {
	var req envFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.vault.UpsertEnvFile(r.Context(), userID, &services.FilePush{
		ProjectName: req.ProjectName,
		FileName:    req.FileName,
		Content:     req.EncryptedContent,
		IV:          req.IV,
		AuthTag:     req.Tag,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pushVersion(w http.ResponseWriter, r *http.Request, userID string) {
	var req versionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.vault.AddVersion(r.Context(), userID, &services.VersionPush{
		ProjectName:   req.ProjectName,
		FileName:      req.FileName,
		VersionToken:  req.VersionToken,
		Content:       req.EncryptedContent,
		IV:            req.IV,
		AuthTag:       req.Tag,
		CommitMessage: req.CommitMessage,
		AuthorEmail:   req.AuthorEmail,
		CreatedAt:     req.CreatedAt,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pushRollback(w http.ResponseWriter, r *http.Request, userID string) {
	var req rollbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.vault.AddRollback(r.Context(), userID, &services.RollbackPush{
		ProjectName: req.ProjectName,
		FileName:    req.FileName,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		Reason:      req.Reason,
		PerformedBy: req.PerformedBy,
		CreatedAt:   req.CreatedAt,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProjectFiles(w http.ResponseWriter, r *http.Request, userID string) {
	projectName := r.PathValue("name")
	files, err := h.vault.ListProjectFiles(r.Context(), userID, projectName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := listFilesResponse{Files: make([]fileResponse, 0, len(files))}
	for _, f := range files {
		fr := fileResponse{
			FileName:         f.File.Name,
			EncryptedContent: f.File.Content,
			IV:               f.File.IV,
			Tag:              f.File.AuthTag,
			CreatedAt:        f.File.CreatedAt,
			UpdatedAt:        f.File.UpdatedAt,
			Versions:         make([]versionResponse, 0, len(f.Versions)),
			Rollbacks:        make([]rollbackResponse, 0, len(f.Rollbacks)),
		}
		for _, v := range f.Versions {
			fr.Versions = append(fr.Versions, versionResponse{
				VersionToken:     v.VersionToken,
				EncryptedContent: v.Content,
				IV:               v.IV,
				Tag:              v.AuthTag,
				CommitMessage:    v.CommitMessage,
				AuthorEmail:      v.AuthorEmail,
				CreatedAt:        v.CreatedAt,
			})
		}
		for _, rb := range f.Rollbacks {
			fr.Rollbacks = append(fr.Rollbacks, rollbackResponse{
				FromToken:   rb.FromVersionToken,
				ToToken:     rb.ToVersionToken,
				Reason:      rb.Reason,
				PerformedBy: rb.PerformedBy,
				CreatedAt:   rb.CreatedAt,
			})
		}
		resp.Files = append(resp.Files, fr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) renameEnvFile(w http.ResponseWriter, r *http.Request, userID string) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.RenameEnvFile(r.Context(), userID, req.ProjectName, req.OldName, req.NewName); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteEnvFile(w http.ResponseWriter, r *http.Request, userID string) {
	var req deleteFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.DeleteEnvFile(r.Context(), userID, req.ProjectName, req.FileName); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request, userID string) {
	var req deleteProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.DeleteProject(r.Context(), userID, req.ProjectName); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

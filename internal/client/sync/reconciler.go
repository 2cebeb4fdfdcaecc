// Package sync reconciles the local store with the remote server: it
// replays queued operations, pushes unsynced history, and pulls remote
// state with last-writer-wins conflict resolution.
package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/client/remote"
	"github.com/mberzins/envault/internal/client/store"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/cryptox"
	"github.com/mberzins/envault/internal/filex"
	"github.com/mberzins/envault/internal/logging"
)

// FileError is a per-file failure that did not abort the run.
type FileError struct {
	Name string
	Err  error
}

// Result summarizes one reconciliation run.
type Result struct {
	Replayed        int
	PushedFiles     int
	PushedVersions  int
	PushedRollbacks int
	PulledFiles     int
	Queued          bool
	FileErrors      []FileError
}

// Reconciler drives push, pull, and pending-operation replay.
type Reconciler struct {
	st     *store.Store
	remote remote.Client
	log    logging.Logger
}

// New returns a reconciler over the given store and transport.
func New(st *store.Store, rc remote.Client, log logging.Logger) *Reconciler {
	return &Reconciler{st: st, remote: rc, log: log}
}

// Sync runs a full reconciliation for the project: replay pending
// operations oldest first, push local history, then pull remote state.
// Connectivity failures queue at most one SYNC operation and end the run
// without error; an expired session aborts it.
func (r *Reconciler) Sync(ctx context.Context, sess *models.Session, project *models.Project) (*Result, error) {
	res := &Result{}
	if err := r.ReplayPending(ctx, sess, res); err != nil {
		return res, err
	}
	if err := r.Push(ctx, sess, project, res); err != nil {
		return res, err
	}
	if res.Queued {
		return res, nil
	}
	if err := r.Pull(ctx, sess, project, res); err != nil {
		return res, err
	}
	return res, nil
}

// ReplayPending replays the queue oldest first. A successfully replayed
// operation is deleted; a remote not-found means the effect already
// happened and also clears the operation. Connectivity failures stop the
// replay, leaving the rest queued. An expired session aborts.
func (r *Reconciler) ReplayPending(ctx context.Context, sess *models.Session, res *Result) error {
	ops, err := r.st.PendingOps.ListAll(ctx)
	if err != nil {
		return err
	}

	for i := range ops {
		op := &ops[i]
		err := r.replayOne(ctx, sess, op, res)
		switch {
		case err == nil || errors.Is(err, common.ErrNotFound):
			if derr := r.st.PendingOps.Delete(ctx, op.ID); derr != nil {
				return derr
			}
			res.Replayed++
		case errors.Is(err, common.ErrConnectivity):
			r.log.Info(ctx, "server unreachable, replay stopped", "pending", len(ops)-i)
			return nil
		case errors.Is(err, common.ErrAuthExpired):
			return err
		default:
			r.log.Warn(ctx, "replay failed, operation kept", "op", string(op.Type), "error", err)
		}
	}
	return nil
}

func (r *Reconciler) replayOne(ctx context.Context, sess *models.Session, op *models.PendingOperation, res *Result) error {
	payload, err := op.DecodePayload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case models.RenamePayload:
		return r.remote.RenameEnvFile(ctx, sess, p.ProjectName, p.OldName, p.NewName)
	case models.DeletePayload:
		if p.FileName == "" {
			return r.remote.DeleteProject(ctx, sess, p.ProjectName)
		}
		return r.remote.DeleteEnvFile(ctx, sess, p.ProjectName, p.FileName)
	case models.SyncPayload:
		project, err := r.projectByName(ctx, sess, p.ProjectName)
		if errors.Is(err, common.ErrNotFound) {
			// Deleted locally since the sync was queued; nothing to push.
			return nil
		}
		if err != nil {
			return err
		}
		return r.pushProject(ctx, sess, project, res)
	default:
		return fmt.Errorf("unknown payload %T", payload)
	}
}

func (r *Reconciler) projectByName(ctx context.Context, sess *models.Session, name string) (*models.Project, error) {
	user, err := r.st.Users.GetByEmail(ctx, sess.Email)
	if err != nil {
		return nil, err
	}
	return r.st.Projects.GetByName(ctx, user.ID, name)
}

// Push uploads the project's files, their unsynced versions, and unsynced
// rollback records, in that order. A connectivity failure queues one SYNC
// operation for the project and ends the push without error.
func (r *Reconciler) Push(ctx context.Context, sess *models.Session, project *models.Project, res *Result) error {
	err := r.pushProject(ctx, sess, project, res)
	if errors.Is(err, common.ErrConnectivity) {
		if qerr := r.queueSync(ctx, project); qerr != nil {
			return qerr
		}
		res.Queued = true
		r.log.Info(ctx, "server unreachable, sync queued", "project", project.Name)
		return nil
	}
	return err
}

func (r *Reconciler) pushProject(ctx context.Context, sess *models.Session, project *models.Project, res *Result) error {
	files, err := r.st.EnvFiles.ListByProject(ctx, project.ID)
	if err != nil {
		return err
	}

	for i := range files {
		file := &files[i]
		if file.CurrentVersionID == "" {
			continue
		}
		err := r.pushFile(ctx, sess, project, file, res)
		if errors.Is(err, common.ErrConnectivity) || errors.Is(err, common.ErrAuthExpired) {
			return err
		}
		if err != nil {
			res.FileErrors = append(res.FileErrors, FileError{Name: file.Name, Err: err})
			continue
		}
		res.PushedFiles++
	}
	return nil
}

func (r *Reconciler) pushFile(ctx context.Context, sess *models.Session, project *models.Project, file *models.EnvFile, res *Result) error {
	err := r.remote.UpsertEnvFile(ctx, sess, &remote.EnvFileUpsert{
		ProjectName:      project.Name,
		FileName:         file.Name,
		EncryptedContent: file.Content,
		IV:               file.IV,
		Tag:              file.AuthTag,
		CreatedAt:        file.CreatedAt,
		UpdatedAt:        file.UpdatedAt,
	})
	if err != nil {
		return err
	}

	versions, err := r.st.EnvVersions.ListUnsynced(ctx, file.ID)
	if err != nil {
		return err
	}
	for i := range versions {
		v := &versions[i]
		err := r.remote.PushVersion(ctx, sess, &remote.VersionPush{
			ProjectName:      project.Name,
			FileName:         file.Name,
			VersionToken:     v.VersionToken,
			EncryptedContent: v.Content,
			IV:               v.IV,
			Tag:              v.AuthTag,
			CommitMessage:    v.CommitMessage,
			AuthorEmail:      v.AuthorEmail,
			CreatedAt:        v.CreatedAt,
		})
		// A duplicate means a previous push landed but the ack was lost.
		if err != nil && !errors.Is(err, common.ErrConstraint) {
			return err
		}
		if err := r.st.EnvVersions.MarkSynced(ctx, v.ID); err != nil {
			return err
		}
		res.PushedVersions++
	}

	records, err := r.st.Rollbacks.ListUnsynced(ctx, file.ID)
	if err != nil {
		return err
	}
	for i := range records {
		rec := &records[i]
		err := r.remote.PushRollback(ctx, sess, &remote.RollbackPush{
			ProjectName: project.Name,
			FileName:    file.Name,
			FromToken:   rec.FromVersionToken,
			ToToken:     rec.ToVersionToken,
			Reason:      rec.Reason,
			PerformedBy: rec.PerformedBy,
			CreatedAt:   rec.CreatedAt,
		})
		if err != nil && !errors.Is(err, common.ErrConstraint) {
			return err
		}
		if err := r.st.Rollbacks.MarkSynced(ctx, rec.ID); err != nil {
			return err
		}
		res.PushedRollbacks++
	}
	return nil
}

// queueSync records at most one SYNC operation per project; queuing while
// one is already pending is a no-op.
func (r *Reconciler) queueSync(ctx context.Context, project *models.Project) error {
	exists, err := r.st.PendingOps.HasSyncForEntity(ctx, project.ID)
	if err != nil || exists {
		return err
	}
	payload, err := models.EncodePayload(models.SyncPayload{ProjectName: project.Name})
	if err != nil {
		return err
	}
	return r.st.PendingOps.Create(ctx, &models.PendingOperation{
		ID:         uuid.NewString(),
		Type:       models.OperationSync,
		EntityType: models.EntityProject,
		EntityID:   project.ID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
}

// Pull fetches the project's remote files and reconciles each one:
//
//	absent on disk and in the store  -> adopt remote, write disk
//	absent on disk, in the store     -> restore disk (remote wins if newer)
//	on disk, absent from the store   -> import remote history, keep disk
//	present in both                  -> last writer wins by updated_at
//
// Taking the remote side replaces the file's entire local history.
func (r *Reconciler) Pull(ctx context.Context, sess *models.Session, project *models.Project, res *Result) error {
	remoteFiles, err := r.remote.ListProjectFiles(ctx, sess, project.Name)
	if errors.Is(err, common.ErrConnectivity) {
		if qerr := r.queueSync(ctx, project); qerr != nil {
			return qerr
		}
		res.Queued = true
		return nil
	}
	if err != nil {
		return err
	}

	for i := range remoteFiles {
		rf := &remoteFiles[i]
		if err := r.pullFile(ctx, sess, project, rf, res); err != nil {
			if errors.Is(err, common.ErrAuthExpired) {
				return err
			}
			res.FileErrors = append(res.FileErrors, FileError{Name: rf.FileName, Err: err})
		}
	}
	return nil
}

func (r *Reconciler) pullFile(ctx context.Context, sess *models.Session, project *models.Project, rf *remote.RemoteFile, res *Result) error {
	diskPath := filepath.Join(project.DirectoryPath, rf.FileName)
	onDisk := filex.Exists(diskPath)

	local, err := r.st.EnvFiles.GetByName(ctx, project.ID, rf.FileName)
	inStore := err == nil
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	takeRemote := !inStore || rf.UpdatedAt.After(local.UpdatedAt)
	if !takeRemote {
		if !onDisk {
			// Local store is current; recover the working file from it.
			plaintext, err := cryptox.Decrypt(local.Content, local.IV, local.AuthTag, sess.Email, sess.EncryptionSalt)
			if err != nil {
				return err
			}
			return filex.WriteFile(diskPath, plaintext)
		}
		return nil
	}

	// Verify the remote content decrypts before touching anything.
	plaintext, err := cryptox.Decrypt(rf.EncryptedContent, rf.IV, rf.Tag, sess.Email, sess.EncryptionSalt)
	if err != nil {
		return err
	}

	if !inStore {
		now := time.Now().UTC()
		local = &models.EnvFile{
			ID: uuid.NewString(), ProjectID: project.ID, Name: rf.FileName,
			CreatedAt: rf.CreatedAt, UpdatedAt: now,
		}
		if local.CreatedAt.IsZero() {
			local.CreatedAt = now
		}
		if err := r.st.EnvFiles.Create(ctx, local); err != nil {
			return err
		}
	}

	history := buildHistory(local.ID, rf)
	if err := r.st.ReplaceFileHistory(ctx, history); err != nil {
		return err
	}
	res.PulledFiles++

	// A working file that exists only on disk keeps its content; everything
	// else gets the remote head.
	if inStore || !onDisk {
		if err := filex.WriteFile(diskPath, plaintext); err != nil {
			r.log.Warn(ctx, "pulled history but disk write failed",
				"file", rf.FileName, "path", diskPath, "error", err)
		}
	}
	return nil
}

// buildHistory converts a remote file into a local history. The remote
// version array is oldest first and carries no parent links, so ancestry is
// rebuilt from the order: each version becomes the child of the previous
// one and the last becomes the head.
func buildHistory(envFileID string, rf *remote.RemoteFile) *store.FileHistory {
	h := &store.FileHistory{
		EnvFileID: envFileID,
		Content:   rf.EncryptedContent,
		IV:        rf.IV,
		AuthTag:   rf.Tag,
		UpdatedAt: rf.UpdatedAt,
	}

	parentID := ""
	for i := range rf.Versions {
		rv := &rf.Versions[i]
		v := models.EnvVersion{
			ID:              uuid.NewString(),
			EnvFileID:       envFileID,
			VersionToken:    rv.VersionToken,
			Content:         rv.EncryptedContent,
			IV:              rv.IV,
			AuthTag:         rv.Tag,
			CommitMessage:   rv.CommitMessage,
			AuthorEmail:     rv.AuthorEmail,
			ParentVersionID: parentID,
			SyncedToServer:  true,
			CreatedAt:       rv.CreatedAt,
		}
		parentID = v.ID
		h.Versions = append(h.Versions, v)
	}
	h.CurrentVersionID = parentID

	for i := range rf.Rollbacks {
		rr := &rf.Rollbacks[i]
		h.Rollbacks = append(h.Rollbacks, models.RollbackRecord{
			ID:               uuid.NewString(),
			EnvFileID:        envFileID,
			FromVersionToken: rr.FromToken,
			ToVersionToken:   rr.ToToken,
			Reason:           rr.Reason,
			PerformedBy:      rr.PerformedBy,
			SyncedToServer:   true,
			CreatedAt:        rr.CreatedAt,
		})
	}
	return h
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType tags a queued remote side-effect.
type OperationType string

const (
	OperationRename OperationType = "RENAME"
	OperationDelete OperationType = "DELETE"
	OperationSync   OperationType = "SYNC"
)

// EntityType names the entity a pending operation targets.
type EntityType string

const (
	EntityProject EntityType = "project"
	EntityEnvFile EntityType = "env_file"
)

// PendingOperation is a queued side-effect awaiting remote replay. It is
// created only when a remote call fails for a connectivity-class reason and
// deleted once successfully replayed.
type PendingOperation struct {
	ID         string
	Type       OperationType
	EntityType EntityType
	EntityID   string
	Payload    []byte
	CreatedAt  time.Time
}

// RenamePayload describes a remote file rename.
type RenamePayload struct {
	ProjectName string `json:"project_name"`
	OldName     string `json:"old_name"`
	NewName     string `json:"new_name"`
}

// DeletePayload describes a remote deletion. An empty FileName means the
// whole project is deleted.
type DeletePayload struct {
	ProjectName string `json:"project_name"`
	FileName    string `json:"file_name,omitempty"`
}

// SyncPayload asks for a full push of the named project.
type SyncPayload struct {
	ProjectName string `json:"project_name"`
}

// EncodePayload serializes a typed payload for storage.
func EncodePayload(p any) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload decodes the stored payload into the typed value matching the
// operation type, so replay logic can switch exhaustively instead of poking
// at raw JSON.
func (op *PendingOperation) DecodePayload() (any, error) {
	switch op.Type {
	case OperationRename:
		var p RenamePayload
		return p, json.Unmarshal(op.Payload, &p)
	case OperationDelete:
		var p DeletePayload
		return p, json.Unmarshal(op.Payload, &p)
	case OperationSync:
		var p SyncPayload
		return p, json.Unmarshal(op.Payload, &p)
	default:
		return nil, fmt.Errorf("unknown operation type %q", op.Type)
	}
}

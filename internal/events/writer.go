package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ContractCreated   = "contract.created"
	ContractStatus    = "contract.status"
	ContractDeleted   = "contract.deleted"
	ContractUpdated   = "contract.updated"
	TaskCreated       = "task.created"
	TaskUpdated       = "task.updated"
	TaskDeleted       = "task.deleted"
	CommentAdded      = "comment.added"
	SignatureCreated  = "signature.created"
	SignatureSigned   = "signature.signed"
	SignatureDeclined = "signature.declined"
	SignatureStatus   = "signature.status"
	SignatureDeleted  = "signature.deleted"
	DocumentCreated   = "document.created"
	DocumentDeleted   = "document.deleted"
	WorkspaceSeeded   = "workspace.seeded"
	RoleAssigned      = "role.assigned"
	RoleRevoked       = "role.revoked"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

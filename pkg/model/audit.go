package model

import (
	"fmt"
	"strconv"
	"time"
)

// Action identifies the kind of mutation an AuditEntry records.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionExport   Action = "EXPORT"
	ActionRollback Action = "ROLLBACK"
)

// EntryID is the time-ordered identifier of an AuditEntry.
type EntryID int64

// String returns the decimal form used on the CLI and in URLs.
func (id EntryID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseEntryID parses the decimal form of an EntryID.
func ParseEntryID(s string) (EntryID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid audit entry id %q", s)
	}
	return EntryID(n), nil
}

// AuditEntry is one immutable record of a state-changing action.
type AuditEntry struct {
	ID            EntryID   `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Action        Action    `json:"action"`
	ActorID       string    `json:"actor_id"`
	ActorIP       string    `json:"actor_ip"`
	ActorDevice   string    `json:"actor_device"`
	SessionID     string    `json:"session_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	OldSnapshot   string    `json:"old_snapshot"`
	NewSnapshot   string    `json:"new_snapshot"`
	SignatureHash HashValue `json:"signature_hash"`
	Note          string    `json:"note"`
	PrevHash      HashValue `json:"prev_hash"`
	RecordHash    HashValue `json:"record_hash"`
}

// Key returns the entity stream the entry belongs to.
func (e *AuditEntry) Key() EntityKey {
	return EntityKey{Type: e.EntityType, ID: e.EntityID}
}

// EntityDisplay renders the entity as "machines #42", or "system" when the
// entry carries no entity type.
func (e *AuditEntry) EntityDisplay() string {
	entity := e.EntityType
	if entity == "" {
		entity = "system"
	}
	if e.EntityID != "" {
		entity += " #" + e.EntityID
	}
	return entity
}

// UserDisplay renders the actor, falling back to "System".
func (e *AuditEntry) UserDisplay() string {
	if e.ActorID == "" {
		return "System"
	}
	return e.ActorID
}

// Header renders "ACTION • entity" for previews and listings.
func (e *AuditEntry) Header() string {
	action := string(e.Action)
	if action == "" {
		action = "AUDIT"
	}
	return action + " • " + e.EntityDisplay()
}

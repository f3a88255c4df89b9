package model

import "time"

// EntityKey identifies one entity stream: its logical type and stringified
// primary key.
type EntityKey struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

func (k EntityKey) String() string {
	return k.Type + "/" + k.ID
}

// EntityState is the persisted state of one entity as seen by the audit core.
type EntityState struct {
	Key       EntityKey `json:"key"`
	State     string    `json:"state"`
	Revision  Revision  `json:"revision"`
	Deleted   bool      `json:"deleted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exists reports whether the entity currently holds live state.
func (s *EntityState) Exists() bool {
	return s.Revision > 0 && !s.Deleted
}

// Snapshot returns the state to record as a snapshot: the stored JSON for a
// live entity, or EmptySnapshot otherwise.
func (s *EntityState) Snapshot() string {
	if !s.Exists() || s.State == "" {
		return EmptySnapshot
	}
	return s.State
}

// DisplayNamer is implemented by entity DTOs that can offer a human-readable
// name for status messages.
type DisplayNamer interface {
	DisplayName() (string, bool)
}

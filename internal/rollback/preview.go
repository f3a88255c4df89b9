package rollback

import (
	"context"
	"time"

	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/model"
)

// Preview is the operator-facing view of an audit entry before a rollback.
type Preview struct {
	EntryID         model.EntryID         `json:"entry_id"`
	Header          string                `json:"header"`
	Action          model.Action          `json:"action"`
	EntityType      string                `json:"entity_type"`
	EntityID        string                `json:"entity_id"`
	EntityDisplay   string                `json:"entity_display"`
	DisplayName     string                `json:"display_name,omitempty"`
	UserDisplay     string                `json:"user_display"`
	OccurredAt      time.Time             `json:"occurred_at"`
	Note            string                `json:"note,omitempty"`
	OldJSON         string                `json:"old_json"`
	NewJSON         string                `json:"new_json"`
	SignatureStatus model.SignatureStatus `json:"signature_status"`
	Eligible        bool                  `json:"eligible"`
	HandlerFound    bool                  `json:"handler_found"`
	CanRollback     bool                  `json:"can_rollback"`
	// Revision is the entity's current revision. Pass it back as the
	// expected revision so a later write aborts the rollback.
	Revision model.Revision `json:"revision"`
}

// BuildPreview renders e without touching storage.
func (c *Coordinator) BuildPreview(e *model.AuditEntry) *Preview {
	p := &Preview{
		EntryID:         e.ID,
		Header:          e.Header(),
		Action:          e.Action,
		EntityType:      e.EntityType,
		EntityID:        e.EntityID,
		EntityDisplay:   e.EntityDisplay(),
		UserDisplay:     e.UserDisplay(),
		OccurredAt:      e.OccurredAt,
		Note:            e.Note,
		OldJSON:         jsonutil.Pretty(e.OldSnapshot),
		NewJSON:         jsonutil.Pretty(e.NewSnapshot),
		SignatureStatus: c.signer.Status(e),
		Eligible:        IsEligible(e),
	}
	_, p.HandlerFound = c.registry.Resolve(e.EntityType)
	p.CanRollback = p.Eligible && p.HandlerFound && p.SignatureStatus == model.SignatureValid

	snapshot := e.NewSnapshot
	if jsonutil.IsEmptySnapshot(snapshot) {
		snapshot = e.OldSnapshot
	}
	if name, ok := c.displayName(e.EntityType, snapshot); ok {
		p.DisplayName = name
	}
	return p
}

// Preview loads an entry and renders it together with the current revision
// of its entity.
func (c *Coordinator) Preview(ctx context.Context, id model.EntryID) (*Preview, error) {
	e, err := c.store.AuditEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	p := c.BuildPreview(e)
	if e.EntityType != "" && e.EntityID != "" {
		st, err := c.store.EntityState(ctx, e.EntityType, e.EntityID)
		if err != nil {
			return nil, err
		}
		p.Revision = st.Revision
	}
	return p, nil
}

package storage

import (
	"time"

	"gorm.io/datatypes"

	"github.com/gxp-audit/gxa/pkg/model"
)

// auditEntryRow maps model.AuditEntry onto the audit_entries table.
// Snapshots are stored as text so the signed and chained bytes survive the
// round trip unchanged on every driver.
type auditEntryRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	EntityType    string    `gorm:"size:64;not null;index:idx_audit_stream,priority:1"`
	EntityID      string    `gorm:"size:128;not null;index:idx_audit_stream,priority:2"`
	Action        string    `gorm:"size:32;not null;index"`
	ActorID       string    `gorm:"size:128"`
	ActorIP       string    `gorm:"size:64"`
	ActorDevice   string    `gorm:"size:256"`
	SessionID     string    `gorm:"size:64"`
	OccurredAt    time.Time `gorm:"not null"`
	OldSnapshot   string    `gorm:"type:text"`
	NewSnapshot   string    `gorm:"type:text"`
	SignatureHash string    `gorm:"size:64"`
	Note          string    `gorm:"type:text"`
	PrevHash      string    `gorm:"size:64"`
	RecordHash    string    `gorm:"size:64;not null"`
}

func (auditEntryRow) TableName() string { return "audit_entries" }

func rowFromEntry(e *model.AuditEntry) *auditEntryRow {
	return &auditEntryRow{
		ID:            int64(e.ID),
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Action:        string(e.Action),
		ActorID:       e.ActorID,
		ActorIP:       e.ActorIP,
		ActorDevice:   e.ActorDevice,
		SessionID:     e.SessionID,
		OccurredAt:    e.OccurredAt.UTC(),
		OldSnapshot:   e.OldSnapshot,
		NewSnapshot:   e.NewSnapshot,
		SignatureHash: string(e.SignatureHash),
		Note:          e.Note,
		PrevHash:      string(e.PrevHash),
		RecordHash:    string(e.RecordHash),
	}
}

func (r *auditEntryRow) entry() model.AuditEntry {
	return model.AuditEntry{
		ID:            model.EntryID(r.ID),
		EntityType:    r.EntityType,
		EntityID:      r.EntityID,
		Action:        model.Action(r.Action),
		ActorID:       r.ActorID,
		ActorIP:       r.ActorIP,
		ActorDevice:   r.ActorDevice,
		SessionID:     r.SessionID,
		OccurredAt:    r.OccurredAt.UTC(),
		OldSnapshot:   r.OldSnapshot,
		NewSnapshot:   r.NewSnapshot,
		SignatureHash: model.HashValue(r.SignatureHash),
		Note:          r.Note,
		PrevHash:      model.HashValue(r.PrevHash),
		RecordHash:    model.HashValue(r.RecordHash),
	}
}

// entityRecordRow holds the current state of one entity.
type entityRecordRow struct {
	EntityType string         `gorm:"primaryKey;size:64"`
	EntityID   string         `gorm:"primaryKey;size:128"`
	State      datatypes.JSON `gorm:"not null"`
	Revision   uint64         `gorm:"not null;default:0"`
	Deleted    bool           `gorm:"not null;default:false"`
	UpdatedAt  time.Time
}

func (entityRecordRow) TableName() string { return "entity_records" }

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gxp-audit/gxa/internal/audit"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/model"
)

// txn implements Tx on top of a GORM transaction. It remembers the revision
// of every entity it read so that writes can use optimistic updates.
type txn struct {
	store     *Store
	db        *gorm.DB
	revisions map[model.EntityKey]model.Revision
	appended  []model.AuditEntry
}

func (t *txn) AuditEntries(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error) {
	return auditEntries(t.db.WithContext(ctx), entityType, entityID)
}

func (t *txn) AuditEntry(ctx context.Context, id model.EntryID) (*model.AuditEntry, error) {
	return auditEntry(t.db.WithContext(ctx), id)
}

func (t *txn) EntityState(ctx context.Context, entityType, entityID string) (model.EntityState, error) {
	st, err := entityState(t.db.WithContext(ctx), entityType, entityID)
	if err != nil {
		return st, err
	}
	t.revisions[st.Key] = st.Revision
	return st, nil
}

func (t *txn) AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	if !signature.WellFormed(e.SignatureHash) {
		return fmt.Errorf("append audit entry: entry is not signed")
	}
	if e.ID == 0 {
		e.ID = model.EntryID(t.store.node.Generate().Int64())
	}

	var last auditEntryRow
	err := t.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", e.EntityType, e.EntityID).
		Order("id DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return fmt.Errorf("read stream head: %w", err)
	}
	if last.ID >= int64(e.ID) {
		return fmt.Errorf("append audit entry: id %s is not newer than stream head %d", e.ID, last.ID)
	}

	if err := audit.Link(model.HashValue(last.RecordHash), e); err != nil {
		return err
	}
	if err := t.db.WithContext(ctx).Create(rowFromEntry(e)).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	t.appended = append(t.appended, *e)
	return nil
}

func (t *txn) ApplyEntitySnapshot(ctx context.Context, entityType, entityID, snapshot string) error {
	state, err := jsonutil.CanonicalSnapshot(snapshot)
	if err != nil {
		return errclass.ErrSnapshotInvalid.Wrap(err)
	}
	return t.write(ctx, entityType, entityID, state, false)
}

func (t *txn) DeleteEntity(ctx context.Context, entityType, entityID string) error {
	key := model.EntityKey{Type: entityType, ID: entityID}
	rev, err := t.revisionOf(ctx, key)
	if err != nil {
		return err
	}
	if rev == 0 {
		return errclass.ErrEntityNotFound.WithMessage(key.String())
	}
	return t.write(ctx, entityType, entityID, model.EmptySnapshot, true)
}

func (t *txn) revisionOf(ctx context.Context, key model.EntityKey) (model.Revision, error) {
	if rev, ok := t.revisions[key]; ok {
		return rev, nil
	}
	st, err := t.EntityState(ctx, key.Type, key.ID)
	if err != nil {
		return 0, err
	}
	return st.Revision, nil
}

func (t *txn) write(ctx context.Context, entityType, entityID, state string, deleted bool) error {
	key := model.EntityKey{Type: entityType, ID: entityID}
	expected, err := t.revisionOf(ctx, key)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	db := t.db.WithContext(ctx)

	if expected == 0 {
		row := &entityRecordRow{
			EntityType: entityType,
			EntityID:   entityID,
			State:      datatypes.JSON(state),
			Revision:   1,
			Deleted:    deleted,
			UpdatedAt:  now,
		}
		if err := db.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errclass.ErrConcurrencyConflict.WithMessagef("%s was created concurrently", key)
			}
			return fmt.Errorf("insert entity %s: %w", key, err)
		}
		t.revisions[key] = 1
		return nil
	}

	res := db.Model(&entityRecordRow{}).
		Where("entity_type = ? AND entity_id = ? AND revision = ?", entityType, entityID, uint64(expected)).
		Updates(map[string]any{
			"state":      datatypes.JSON(state),
			"revision":   gorm.Expr("revision + 1"),
			"deleted":    deleted,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("update entity %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return errclass.ErrConcurrencyConflict.WithMessagef("%s changed since revision %d", key, expected)
	}
	t.revisions[key] = expected + 1
	return nil
}

func canonicalState(raw datatypes.JSON) (string, error) {
	if len(raw) == 0 {
		return model.EmptySnapshot, nil
	}
	return jsonutil.CanonicalSnapshot(string(raw))
}

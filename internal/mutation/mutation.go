// Package mutation is the single write path for audited entities. Every
// create, update and delete writes the entity row and a signed audit entry
// in one transaction.
package mutation

import (
	"context"
	"fmt"

	"github.com/gxp-audit/gxa/internal/lock"
	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/naming"
)

// Store is the transactional storage a Recorder writes through.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Recorder holds what every audited write needs. Share one Recorder (and
// its lock manager) with the rollback coordinator so writers of the same
// entity serialize.
type Recorder struct {
	store  Store
	signer *signature.Service
	locks  *lock.Manager
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLocks sets the per-entity lock manager.
func WithLocks(m *lock.Manager) Option {
	return func(r *Recorder) { r.locks = m }
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, signer *signature.Service, opts ...Option) *Recorder {
	r := &Recorder{store: store, signer: signer}
	for _, opt := range opts {
		opt(r)
	}
	if r.locks == nil {
		r.locks = lock.NewManager()
	}
	return r
}

// Serializer turns an entity value into its snapshot JSON.
type Serializer[T any] func(v *T) (string, error)

// CanonicalJSON is the default Serializer.
func CanonicalJSON[T any](v *T) (string, error) {
	data, err := jsonutil.CanonicalMarshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AuditedMutation writes entities of one type represented by T.
type AuditedMutation[T any] struct {
	rec        *Recorder
	entityType string
	serialize  Serializer[T]
}

// For binds a Recorder to one entity type with the canonical JSON
// serializer.
func For[T any](r *Recorder, entityType string) (*AuditedMutation[T], error) {
	return WithSerializer(r, entityType, CanonicalJSON[T])
}

// WithSerializer is For with a custom serializer.
func WithSerializer[T any](r *Recorder, entityType string, s Serializer[T]) (*AuditedMutation[T], error) {
	if err := naming.ValidateEntityType(entityType); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("mutation %s: nil serializer", entityType)
	}
	return &AuditedMutation[T]{rec: r, entityType: entityType, serialize: s}, nil
}

// EntityType returns the bound entity type.
func (m *AuditedMutation[T]) EntityType() string { return m.entityType }

// Create writes a new entity. It fails if the entity already holds live
// state; a deleted entity may be created again.
func (m *AuditedMutation[T]) Create(ctx context.Context, rc model.RequestContext, entityID string, v *T, note string) (*model.AuditEntry, error) {
	snapshot, err := m.snapshot(v)
	if err != nil {
		return nil, err
	}
	return m.rec.write(ctx, rc, m.key(entityID), model.ActionCreate, note, func(ctx context.Context, tx storage.Tx, before model.EntityState) error {
		if before.Exists() {
			return errclass.ErrConcurrencyConflict.WithMessagef("%s already exists", before.Key)
		}
		return tx.ApplyEntitySnapshot(ctx, m.entityType, entityID, snapshot)
	})
}

// Update replaces the state of an existing entity.
func (m *AuditedMutation[T]) Update(ctx context.Context, rc model.RequestContext, entityID string, v *T, note string) (*model.AuditEntry, error) {
	snapshot, err := m.snapshot(v)
	if err != nil {
		return nil, err
	}
	return m.rec.write(ctx, rc, m.key(entityID), model.ActionUpdate, note, func(ctx context.Context, tx storage.Tx, before model.EntityState) error {
		if !before.Exists() {
			return errclass.ErrEntityNotFound.WithMessage(before.Key.String())
		}
		return tx.ApplyEntitySnapshot(ctx, m.entityType, entityID, snapshot)
	})
}

// Put creates the entity if it has no live state and updates it otherwise.
func (m *AuditedMutation[T]) Put(ctx context.Context, rc model.RequestContext, entityID string, v *T, note string) (*model.AuditEntry, error) {
	snapshot, err := m.snapshot(v)
	if err != nil {
		return nil, err
	}
	return m.rec.writeAction(ctx, rc, m.key(entityID), note, func(before model.EntityState) model.Action {
		if before.Exists() {
			return model.ActionUpdate
		}
		return model.ActionCreate
	}, func(ctx context.Context, tx storage.Tx, _ model.EntityState) error {
		return tx.ApplyEntitySnapshot(ctx, m.entityType, entityID, snapshot)
	})
}

// Delete marks an entity deleted. Its last state becomes the audit entry's
// old snapshot, so the delete can be rolled back.
func (m *AuditedMutation[T]) Delete(ctx context.Context, rc model.RequestContext, entityID, note string) (*model.AuditEntry, error) {
	return m.rec.write(ctx, rc, m.key(entityID), model.ActionDelete, note, func(ctx context.Context, tx storage.Tx, before model.EntityState) error {
		if !before.Exists() {
			return errclass.ErrEntityNotFound.WithMessage(before.Key.String())
		}
		return tx.DeleteEntity(ctx, m.entityType, entityID)
	})
}

func (m *AuditedMutation[T]) key(entityID string) model.EntityKey {
	return model.EntityKey{Type: m.entityType, ID: entityID}
}

func (m *AuditedMutation[T]) snapshot(v *T) (string, error) {
	if v == nil {
		return "", errclass.ErrSnapshotInvalid.WithMessagef("%s: nil value", m.entityType)
	}
	if val, ok := any(v).(restore.Validator); ok {
		if err := val.Validate(); err != nil {
			return "", errclass.ErrSnapshotInvalid.Wrap(err)
		}
	}
	s, err := m.serialize(v)
	if err != nil {
		return "", errclass.ErrSnapshotInvalid.Wrap(err)
	}
	return jsonutil.CanonicalSnapshot(s)
}

type writeFunc func(ctx context.Context, tx storage.Tx, before model.EntityState) error

func (r *Recorder) write(ctx context.Context, rc model.RequestContext, key model.EntityKey, action model.Action, note string, fn writeFunc) (*model.AuditEntry, error) {
	return r.writeAction(ctx, rc, key, note, func(model.EntityState) model.Action { return action }, fn)
}

func (r *Recorder) writeAction(ctx context.Context, rc model.RequestContext, key model.EntityKey, note string, action func(model.EntityState) model.Action, fn writeFunc) (*model.AuditEntry, error) {
	if err := naming.ValidateEntityID(key.ID); err != nil {
		return nil, err
	}
	release, err := r.locks.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var appended *model.AuditEntry
	err = r.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		before, err := tx.EntityState(ctx, key.Type, key.ID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, before); err != nil {
			return err
		}
		after, err := tx.EntityState(ctx, key.Type, key.ID)
		if err != nil {
			return err
		}
		e := &model.AuditEntry{
			EntityType:  key.Type,
			EntityID:    key.ID,
			Action:      action(before),
			OldSnapshot: before.Snapshot(),
			NewSnapshot: after.Snapshot(),
			Note:        note,
		}
		rc.Stamp(e)
		r.signer.Sign(e)
		if err := tx.AppendAuditEntry(ctx, e); err != nil {
			return err
		}
		appended = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

// Export records an EXPORT action for an entity stream. The entry carries
// no entity id and no snapshots, so it is never eligible for rollback.
func (r *Recorder) Export(ctx context.Context, rc model.RequestContext, entityType, note string) (*model.AuditEntry, error) {
	if err := naming.ValidateEntityType(entityType); err != nil {
		return nil, err
	}
	e := &model.AuditEntry{
		EntityType:  entityType,
		Action:      model.ActionExport,
		OldSnapshot: model.EmptySnapshot,
		NewSnapshot: model.EmptySnapshot,
		Note:        note,
	}
	rc.Stamp(e)
	r.signer.Sign(e)
	err := r.store.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.AppendAuditEntry(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

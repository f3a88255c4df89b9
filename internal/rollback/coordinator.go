// Package rollback restores entities from audit snapshots after checking
// eligibility, the entry signature and operator confirmation.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gxp-audit/gxa/internal/lock"
	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/logging"
	"github.com/gxp-audit/gxa/pkg/metrics"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/tracing"
)

// Store is the storage the coordinator reads from and writes through.
type Store interface {
	storage.Reader
	Atomically(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Request is one rollback attempt. ExpectedRevision is the entity revision
// observed when Entry was selected.
type Request struct {
	Entry            model.AuditEntry
	ExpectedRevision model.Revision
	Confirmed        bool
}

// Coordinator runs rollbacks end to end.
type Coordinator struct {
	store    Store
	registry *restore.Registry
	signer   *signature.Service
	locks    *lock.Manager
	metrics  *metrics.Registry
	logger   *logging.Logger
	names    DisplayNameFunc
}

// DisplayNameFunc returns a human-readable name for an entity snapshot.
type DisplayNameFunc func(entityType, snapshot string) (string, bool)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLocks shares a lock manager with other writers of the same entities.
func WithLocks(m *lock.Manager) Option {
	return func(c *Coordinator) { c.locks = m }
}

// WithMetrics records outcomes on r.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Coordinator) { c.metrics = r }
}

// WithLogger overrides the global logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithDisplayNames enables entity names in prompts and previews.
func WithDisplayNames(f DisplayNameFunc) Option {
	return func(c *Coordinator) { c.names = f }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store Store, registry *restore.Registry, signer *signature.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		registry: registry,
		signer:   signer,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = lock.NewManager()
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	c.logger = c.logger.WithFields(map[string]any{"component": "rollback"})
	return c
}

// Prepare loads an audit entry and captures the current revision of its
// entity, producing an unconfirmed Request.
func (c *Coordinator) Prepare(ctx context.Context, id model.EntryID) (Request, error) {
	entry, err := c.store.AuditEntry(ctx, id)
	if err != nil {
		return Request{}, err
	}
	req := Request{Entry: *entry}
	if entry.EntityType == "" || entry.EntityID == "" {
		return req, nil
	}
	st, err := c.store.EntityState(ctx, entry.EntityType, entry.EntityID)
	if err != nil {
		return Request{}, err
	}
	req.ExpectedRevision = st.Revision
	return req, nil
}

// Check runs the side-effect free gates in order: eligibility, signature and
// handler resolution.
func (c *Coordinator) Check(e *model.AuditEntry) (restore.Handler, error) {
	if e == nil {
		return nil, errclass.ErrIneligible.WithMessage("no audit entry")
	}
	if !IsEligible(e) {
		return nil, errclass.ErrIneligible.WithMessagef("audit entry %s has no restorable snapshot", e.ID)
	}
	if !c.signer.VerifyEntry(e) {
		return nil, errclass.ErrSignatureInvalid.WithMessagef("audit entry %s", e.ID)
	}
	h, ok := c.registry.Resolve(e.EntityType)
	if !ok {
		return nil, errclass.ErrNoHandler.WithMessagef("entity type %s", e.EntityType)
	}
	return h, nil
}

// Execute performs the rollback described by req. On success it returns the
// ROLLBACK audit entry. Errors carry an errclass code that model.OutcomeOf
// maps to an outcome; no error leaves a partial write behind.
func (c *Coordinator) Execute(ctx context.Context, rc model.RequestContext, req Request) (_ *model.AuditEntry, err error) {
	start := time.Now()
	entry := req.Entry
	ctx, span := tracing.Start(ctx, "rollback.execute",
		attribute.String("gxa.entity_type", entry.EntityType),
		attribute.String("gxa.entity_id", entry.EntityID),
		attribute.String("gxa.entry_id", entry.ID.String()),
	)
	defer func() {
		span.SetAttributes(attribute.String("gxa.outcome", string(model.OutcomeOf(err))))
		tracing.Fail(span, err)
		span.End()
	}()
	log := c.logger.WithFields(map[string]any{
		"entity":     entry.EntityDisplay(),
		"entry_id":   entry.ID.String(),
		"actor":      rc.ActorID,
		"request_id": rc.RequestID,
	})
	defer func() {
		outcome := model.OutcomeOf(err)
		c.metrics.RecordRollback(string(outcome), time.Since(start))
		if err != nil {
			log.Warn("rollback not applied", map[string]any{"outcome": string(outcome), "error": err.Error()})
		} else {
			log.Info("rollback completed", map[string]any{"outcome": string(outcome)})
		}
	}()

	handler, err := c.Check(&entry)
	if err != nil {
		return nil, err
	}
	if !req.Confirmed {
		return nil, errclass.ErrCancelled.WithMessage("rollback not confirmed")
	}

	release, err := c.locks.Acquire(ctx, entry.Key())
	if err != nil {
		return nil, errclass.ErrCancelled.Wrap(err)
	}
	defer release()

	// Once the transaction starts, the apply and the audit append finish
	// together regardless of the caller's context.
	txCtx := context.WithoutCancel(ctx)
	var appended *model.AuditEntry
	err = c.store.Atomically(txCtx, func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.EntityState(ctx, entry.EntityType, entry.EntityID)
		if err != nil {
			return err
		}
		if current.Revision != req.ExpectedRevision {
			return errclass.ErrConcurrencyConflict.WithMessagef("%s is at revision %d, expected %d",
				entry.EntityDisplay(), current.Revision, req.ExpectedRevision)
		}
		before := current.Snapshot()

		if err := handler(ctx, tx, entry.EntityID, entry.OldSnapshot); err != nil {
			return err
		}

		restored, err := tx.EntityState(ctx, entry.EntityType, entry.EntityID)
		if err != nil {
			return err
		}

		rb := &model.AuditEntry{
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			Action:      model.ActionRollback,
			OldSnapshot: before,
			NewSnapshot: restored.Snapshot(),
			Note:        rollbackNote(entry.ID),
		}
		rc.Stamp(rb)
		c.signer.Sign(rb)
		if err := tx.AppendAuditEntry(ctx, rb); err != nil {
			return err
		}
		appended = rb
		return nil
	})
	if err != nil {
		return nil, classifyApplyError(err)
	}
	return appended, nil
}

// Target names the entity and entry an operator asked to roll back.
// ExpectedRevision, when set, is the entity revision the operator saw when
// selecting the entry (as reported by Preview or history); a write landing
// after that point aborts the rollback with a concurrency conflict. When
// nil the revision is read as the request starts.
type Target struct {
	EntityType       string
	EntityID         string
	EntryID          model.EntryID
	ExpectedRevision *model.Revision
}

// Request runs the whole interactive flow: load, check, confirm, execute.
// The prompt is only shown when the automatic checks pass.
func (c *Coordinator) Request(ctx context.Context, rc model.RequestContext, target Target, confirmer Confirmer) (*model.AuditEntry, error) {
	req, err := c.Prepare(ctx, target.EntryID)
	if err != nil {
		if errors.Is(err, errclass.ErrEntryNotFound) {
			c.metrics.RecordRollback(string(model.OutcomeNotFound), 0)
		}
		return nil, err
	}
	if req.Entry.EntityType != target.EntityType || req.Entry.EntityID != target.EntityID {
		c.metrics.RecordRollback(string(model.OutcomeNotFound), 0)
		return nil, errclass.ErrEntryNotFound.WithMessagef("audit entry %s does not belong to %s #%s",
			target.EntryID, target.EntityType, target.EntityID)
	}
	if target.ExpectedRevision != nil {
		req.ExpectedRevision = *target.ExpectedRevision
	}

	if _, err := c.Check(&req.Entry); err == nil {
		ok, cerr := confirmer.Confirm(ctx, c.prompt(&req.Entry))
		req.Confirmed = ok && cerr == nil
	}
	return c.Execute(ctx, rc, req)
}

// RequestRollback is Request reduced to its outcome. The revision marker is
// taken when the request starts; use Request with Target.ExpectedRevision to
// pin the revision seen at selection time.
func (c *Coordinator) RequestRollback(ctx context.Context, rc model.RequestContext, entityType, entityID string, entryID model.EntryID, confirmer Confirmer) model.RollbackOutcome {
	_, err := c.Request(ctx, rc, Target{EntityType: entityType, EntityID: entityID, EntryID: entryID}, confirmer)
	return model.OutcomeOf(err)
}

func (c *Coordinator) prompt(e *model.AuditEntry) string {
	subject := e.EntityDisplay()
	if name, ok := c.displayName(e.EntityType, e.OldSnapshot); ok {
		subject = fmt.Sprintf("%s (%s)", subject, name)
	}
	return fmt.Sprintf("Roll back %s to its state before %s at %s by %s?",
		subject, e.Action, signature.FormatTimestamp(e.OccurredAt), e.UserDisplay())
}

func (c *Coordinator) displayName(entityType, snapshot string) (string, bool) {
	if c.names == nil {
		return "", false
	}
	return c.names(entityType, snapshot)
}

func rollbackNote(id model.EntryID) string {
	return "rollback of audit entry " + id.String()
}

func classifyApplyError(err error) error {
	if errors.Is(err, errclass.ErrConcurrencyConflict) {
		return err
	}
	return errclass.ErrApplyFailed.Wrap(err)
}

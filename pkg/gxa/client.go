package gxa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gxp-audit/gxa/internal/doctor"
	"github.com/gxp-audit/gxa/internal/entity"
	"github.com/gxp-audit/gxa/internal/events"
	"github.com/gxp-audit/gxa/internal/lock"
	"github.com/gxp-audit/gxa/internal/mutation"
	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/internal/verify"
	"github.com/gxp-audit/gxa/pkg/config"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/logging"
	"github.com/gxp-audit/gxa/pkg/metrics"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/progress"
	"github.com/gxp-audit/gxa/pkg/webhook"
)

// ErrNotInitialized is returned by operations called before Initialize.
var ErrNotInitialized = errors.New("gxa: client not initialized")

// Client provides high-level gxa operations on one database.
type Client struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Registry
	signer  *signature.Service
	locks   *lock.Manager

	registry *restore.Registry
	broker   *events.Broker

	mu          sync.Mutex
	initialized bool
	closed      bool
	store       *storage.Store
	recorder    *mutation.Recorder
	writers     map[string]entity.Writer
	coordinator *rollback.Coordinator
	verifier    *verify.Verifier
	hooks       *webhook.Client
	hookSub     *events.Subscription
	hookDone    chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records metrics on r instead of the default registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Client) { c.metrics = r }
}

// WithLogger overrides the global logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSigner overrides the signature service, typically to pin the clock
// in tests.
func WithSigner(s *signature.Service) Option {
	return func(c *Client) { c.signer = s }
}

// New validates cfg and builds an uninitialized Client.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gxa: %w", err)
	}
	c := &Client{
		cfg:      cfg,
		registry: restore.NewRegistry(),
		broker:   events.NewBroker(),
		locks:    lock.NewManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.Default()
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	if c.signer == nil {
		c.signer = signature.NewService(signature.WithMetrics(c.metrics))
	}
	if err := entity.RegisterHandlers(c.registry); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterHandler adds or replaces the restore handler of an entity type.
// It may be called before or after Initialize.
func (c *Client) RegisterHandler(entityType string, h restore.Handler) error {
	return c.registry.Register(entityType, h)
}

// Initialize opens and migrates the database and starts event delivery.
// Calling it again on an initialized Client is a no-op; a closed Client
// cannot be initialized again.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if c.closed {
		return errors.New("gxa: client is closed")
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:      c.cfg.Database.Driver,
		DSN:         c.cfg.Database.DSN,
		NodeID:      c.cfg.NodeID,
		Debug:       c.cfg.Database.Debug,
		Metrics:     c.metrics,
		AfterCommit: func(entries []model.AuditEntry) { c.broker.Publish(entries...) },
	})
	if err != nil {
		return fmt.Errorf("gxa: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("gxa: %w", err)
	}

	recorder := mutation.NewRecorder(store, c.signer, mutation.WithLocks(c.locks))
	writers, err := entity.Writers(recorder)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("gxa: %w", err)
	}

	c.store = store
	c.recorder = recorder
	c.writers = writers
	c.coordinator = rollback.NewCoordinator(store, c.registry, c.signer,
		rollback.WithLocks(c.locks),
		rollback.WithMetrics(c.metrics),
		rollback.WithLogger(c.logger),
		rollback.WithDisplayNames(entity.DisplayName),
	)
	c.verifier = verify.NewVerifier(store, c.signer)
	c.startWebhooks()
	c.initialized = true

	c.logger.Info("gxa initialized", map[string]any{
		"driver":   store.Driver(),
		"handlers": len(c.registry.Types()),
	})
	return nil
}

func (c *Client) startWebhooks() {
	wh := &c.cfg.Webhooks
	if !wh.Enabled || !anyHookEnabled(wh.Hooks) {
		return
	}
	c.hooks = webhook.NewClient(wh)
	c.hookSub = c.broker.Subscribe(events.Filter{})
	c.hookDone = make(chan struct{})
	go func(sub *events.Subscription, hooks *webhook.Client, done chan struct{}) {
		defer close(done)
		for e := range sub.C() {
			hooks.SendEntry(&e)
		}
	}(c.hookSub, c.hooks, c.hookDone)
}

func anyHookEnabled(hooks []webhook.HookConfig) bool {
	for _, h := range hooks {
		if h.Enabled {
			return true
		}
	}
	return false
}

// Close hands every committed entry still queued to the webhook client,
// flushes it and closes the database.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil
	}
	c.initialized = false
	c.closed = true

	if c.hookSub != nil {
		c.hookSub.Drain()
		<-c.hookDone
		_ = c.hooks.Close()
	}
	c.broker.Close()
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("gxa: close database: %w", err)
	}
	_ = c.logger.Sync()
	return nil
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *config.Config { return c.cfg }

// Metrics returns the metrics registry.
func (c *Client) Metrics() *metrics.Registry { return c.metrics }

// Store returns the underlying store, or nil before Initialize.
func (c *Client) Store() *storage.Store { return c.store }

// HandlerTypes lists entity types with a registered restore handler.
func (c *Client) HandlerTypes() []string { return c.registry.Types() }

// Subscribe delivers committed audit entries matching filter.
func (c *Client) Subscribe(filter events.Filter) *events.Subscription {
	return c.broker.Subscribe(filter)
}

// HistoryItem is one audit entry with its verification status. Revision is
// the entity's current revision, to be passed back as the expected revision
// of a rollback.
type HistoryItem struct {
	model.AuditEntry
	Signature model.SignatureStatus `json:"signature"`
	Eligible  bool                  `json:"eligible"`
	Revision  model.Revision        `json:"revision"`
}

// History returns an entity's audit entries newest first.
func (c *Client) History(ctx context.Context, entityType, entityID string) ([]HistoryItem, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	st, err := c.store.EntityState(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	entries, err := c.store.AuditEntries(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, len(entries))
	for i := range entries {
		items[i] = HistoryItem{
			AuditEntry: entries[i],
			Signature:  c.signer.Status(&entries[i]),
			Eligible:   rollback.IsEligible(&entries[i]),
			Revision:   st.Revision,
		}
	}
	return items, nil
}

// Entry loads one audit entry.
func (c *Client) Entry(ctx context.Context, id model.EntryID) (*model.AuditEntry, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.store.AuditEntry(ctx, id)
}

// EntityState returns an entity's current state. A never-written entity
// yields ErrEntityNotFound.
func (c *Client) EntityState(ctx context.Context, entityType, entityID string) (model.EntityState, error) {
	if err := c.ready(); err != nil {
		return model.EntityState{}, err
	}
	st, err := c.store.EntityState(ctx, entityType, entityID)
	if err != nil {
		return st, err
	}
	if st.Revision == 0 {
		return st, errclass.ErrEntityNotFound.WithMessage(st.Key.String())
	}
	return st, nil
}

// EntryCheck is the verification view of one audit entry.
type EntryCheck struct {
	EntryID   model.EntryID         `json:"entry_id"`
	Signature model.SignatureStatus `json:"signature"`
	Eligible  bool                  `json:"eligible"`
}

// VerifyEntry checks one entry's signature and rollback eligibility.
func (c *Client) VerifyEntry(ctx context.Context, id model.EntryID) (*EntryCheck, error) {
	e, err := c.Entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EntryCheck{EntryID: e.ID, Signature: c.signer.Status(e), Eligible: rollback.IsEligible(e)}, nil
}

// Verify checks signatures and the hash chain of one entity stream.
func (c *Client) Verify(ctx context.Context, entityType, entityID string) (*verify.Result, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.verifier.VerifyStream(ctx, model.EntityKey{Type: entityType, ID: entityID})
}

// VerifyAll checks every stream in the audit log.
func (c *Client) VerifyAll(ctx context.Context) ([]*verify.Result, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.verifier.VerifyAll(ctx)
}

// VerifyAllProgress is VerifyAll reporting each finished stream to cb.
func (c *Client) VerifyAllProgress(ctx context.Context, cb progress.Callback) ([]*verify.Result, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.verifier.VerifyAllProgress(ctx, cb)
}

// Preview renders an audit entry for an operator deciding on a rollback.
func (c *Client) Preview(ctx context.Context, id model.EntryID) (*rollback.Preview, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.coordinator.Preview(ctx, id)
}

// Rollback restores target's entity to the state before target's entry,
// after confirmer agrees. The ROLLBACK entry is returned on success.
func (c *Client) Rollback(ctx context.Context, rc model.RequestContext, target rollback.Target, confirmer rollback.Confirmer) (*model.AuditEntry, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.coordinator.Request(ctx, rc, target, confirmer)
}

// RequestRollback is Rollback reduced to its outcome.
func (c *Client) RequestRollback(ctx context.Context, rc model.RequestContext, entityType, entityID string, entryID model.EntryID, confirmer rollback.Confirmer) model.RollbackOutcome {
	if err := c.ready(); err != nil {
		return model.OutcomeApplyFailed
	}
	return c.coordinator.RequestRollback(ctx, rc, entityType, entityID, entryID, confirmer)
}

// Put creates or updates a catalog entity from its JSON body.
func (c *Client) Put(ctx context.Context, rc model.RequestContext, entityType, entityID, body, note string) (*model.AuditEntry, error) {
	w, err := c.writer(entityType)
	if err != nil {
		return nil, err
	}
	return w.Put(ctx, rc, entityID, body, note)
}

// Delete deletes a catalog entity.
func (c *Client) Delete(ctx context.Context, rc model.RequestContext, entityType, entityID, note string) (*model.AuditEntry, error) {
	w, err := c.writer(entityType)
	if err != nil {
		return nil, err
	}
	return w.Delete(ctx, rc, entityID, note)
}

func (c *Client) writer(entityType string) (entity.Writer, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	w, ok := c.writers[entityType]
	if !ok {
		return nil, errclass.ErrNameInvalid.WithMessagef("unknown entity type %s (known: %v)", entityType, entity.Types())
	}
	return w, nil
}

// Export records that the audit stream of entityType/entityID was exported.
// No file is written.
func (c *Client) Export(ctx context.Context, rc model.RequestContext, entityType, entityID string) (*model.AuditEntry, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	note := "export of " + entityType
	if entityID != "" {
		note += "/" + entityID
	}
	return c.recorder.Export(ctx, rc, entityType, note)
}

// Doctor runs health checks. Strict adds a full tamper scan.
func (c *Client) Doctor(ctx context.Context, strict bool) (*doctor.Result, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return doctor.NewDoctor(c.store, c.registry, c.verifier).Check(ctx, strict), nil
}

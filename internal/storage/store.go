// Package storage persists audit entries and entity state with GORM on
// SQLite or PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/logging"
	"github.com/gxp-audit/gxa/pkg/metrics"
	"github.com/gxp-audit/gxa/pkg/model"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Reader is the read side shared by the store and its transactions.
type Reader interface {
	// AuditEntries returns one entity stream newest first.
	AuditEntries(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error)
	AuditEntry(ctx context.Context, id model.EntryID) (*model.AuditEntry, error)
	// EntityState returns the current state. A never-written entity has
	// Revision 0 and no error.
	EntityState(ctx context.Context, entityType, entityID string) (model.EntityState, error)
}

// Writer is the write side. Writes are only reachable through a Tx.
type Writer interface {
	// AppendAuditEntry assigns an id when unset, links the entry into its
	// entity stream and inserts it. The entry must already be signed.
	AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error
	// ApplyEntitySnapshot replaces an entity's state and bumps its revision.
	// The update only succeeds if the revision is still the one this
	// transaction last read, otherwise it fails with ErrConcurrencyConflict.
	ApplyEntitySnapshot(ctx context.Context, entityType, entityID, snapshot string) error
	// DeleteEntity marks an entity deleted under the same revision guard.
	DeleteEntity(ctx context.Context, entityType, entityID string) error
}

// Tx is the view of the store inside Atomically.
type Tx interface {
	Reader
	Writer
}

// Options configure Open.
type Options struct {
	Driver  string
	DSN     string
	NodeID  int64
	Debug   bool
	Metrics *metrics.Registry
	// AfterCommit is called with the entries appended by a transaction once
	// it has committed.
	AfterCommit func(entries []model.AuditEntry)
}

// Store is the GORM-backed persistence layer.
type Store struct {
	db          *gorm.DB
	node        *snowflake.Node
	driver      string
	metrics     *metrics.Registry
	afterCommit func([]model.AuditEntry)
}

// Open connects to the configured database. It does not migrate.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = "gxa.db"
		}
		dialector = sqlite.Open(dsn)
		opts.Driver = DriverSQLite
	case DriverPostgres, "postgresql":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		dialector = postgres.Open(opts.DSN)
		opts.Driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newStore(ctx, db, opts)
}

// New wraps an already opened GORM handle.
func New(ctx context.Context, db *gorm.DB, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = db.Dialector.Name()
	}
	return newStore(ctx, db, opts)
}

func newStore(ctx context.Context, db *gorm.DB, opts Options) (*Store, error) {
	if opts.Driver == DriverSQLite {
		// SQLite allows one writer; a single connection keeps transactions
		// from failing with "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", opts.NodeID, err)
	}

	s := &Store{
		db:          db,
		node:        node,
		driver:      opts.Driver,
		metrics:     opts.Metrics,
		afterCommit: opts.AfterCommit,
	}
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	logging.Default().WithFields(map[string]any{
		"driver": s.driver,
		"dsn":    MaskDSN(opts.DSN),
	}).Debug("database connected")
	return s, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&auditEntryRow{}, &entityRecordRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Migrated reports whether both tables exist.
func (s *Store) Migrated(ctx context.Context) bool {
	m := s.db.WithContext(ctx).Migrator()
	return m.HasTable(&auditEntryRow{}) && m.HasTable(&entityRecordRow{})
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string { return s.driver }

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the GORM handle for diagnostics and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Atomically runs fn in one database transaction. Any error returned by fn
// rolls back every write it made.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var t *txn
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		t = &txn{store: s, db: gtx, revisions: make(map[model.EntityKey]model.Revision)}
		return fn(ctx, t)
	})
	if err != nil {
		return err
	}
	for i := range t.appended {
		s.metrics.RecordAuditEntry(string(t.appended[i].Action))
	}
	if s.afterCommit != nil && len(t.appended) > 0 {
		s.afterCommit(t.appended)
	}
	return nil
}

// AuditEntries returns one entity stream newest first.
func (s *Store) AuditEntries(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error) {
	return auditEntries(s.db.WithContext(ctx), entityType, entityID)
}

// AuditEntry loads one entry by id.
func (s *Store) AuditEntry(ctx context.Context, id model.EntryID) (*model.AuditEntry, error) {
	return auditEntry(s.db.WithContext(ctx), id)
}

// EntityState reads the current state of an entity.
func (s *Store) EntityState(ctx context.Context, entityType, entityID string) (model.EntityState, error) {
	return entityState(s.db.WithContext(ctx), entityType, entityID)
}

// AppendAuditEntry appends e in its own transaction.
func (s *Store) AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	return s.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AppendAuditEntry(ctx, e)
	})
}

// Streams lists every entity stream present in the audit log.
func (s *Store) Streams(ctx context.Context) ([]model.EntityKey, error) {
	var rows []struct {
		EntityType string
		EntityID   string
	}
	err := s.db.WithContext(ctx).Model(&auditEntryRow{}).
		Distinct("entity_type", "entity_id").
		Order("entity_type, entity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list audit streams: %w", err)
	}
	keys := make([]model.EntityKey, len(rows))
	for i, r := range rows {
		keys[i] = model.EntityKey{Type: r.EntityType, ID: r.EntityID}
	}
	return keys, nil
}

// StreamOldestFirst returns one stream in chain order.
func (s *Store) StreamOldestFirst(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error) {
	var rows []auditEntryRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load audit stream %s/%s: %w", entityType, entityID, err)
	}
	return entriesFromRows(rows), nil
}

// AuditedEntityTypes lists the distinct entity types in the audit log.
func (s *Store) AuditedEntityTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := s.db.WithContext(ctx).Model(&auditEntryRow{}).
		Where("entity_type <> ''").
		Distinct().
		Order("entity_type").
		Pluck("entity_type", &types).Error
	if err != nil {
		return nil, fmt.Errorf("list audited entity types: %w", err)
	}
	return types, nil
}

var dsnPassword = regexp.MustCompile(`(password=)([^\s&]+)|(://[^:/@]+:)([^@]+)(@)`)

// MaskDSN hides passwords in key/value and URL style DSNs.
func MaskDSN(dsn string) string {
	return dsnPassword.ReplaceAllStringFunc(dsn, func(m string) string {
		sub := dsnPassword.FindStringSubmatch(m)
		if sub[1] != "" {
			return sub[1] + "***"
		}
		return sub[3] + "***" + sub[5]
	})
}

func auditEntries(db *gorm.DB, entityType, entityID string) ([]model.AuditEntry, error) {
	var rows []auditEntryRow
	err := db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load audit entries %s/%s: %w", entityType, entityID, err)
	}
	return entriesFromRows(rows), nil
}

func auditEntry(db *gorm.DB, id model.EntryID) (*model.AuditEntry, error) {
	var row auditEntryRow
	err := db.Where("id = ?", int64(id)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errclass.ErrEntryNotFound.WithMessagef("audit entry %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load audit entry %s: %w", id, err)
	}
	e := row.entry()
	return &e, nil
}

func entityState(db *gorm.DB, entityType, entityID string) (model.EntityState, error) {
	st := model.EntityState{Key: model.EntityKey{Type: entityType, ID: entityID}}
	var row entityRecordRow
	err := db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("load entity %s/%s: %w", entityType, entityID, err)
	}
	state, err := canonicalState(row.State)
	if err != nil {
		return st, fmt.Errorf("entity %s/%s: %w", entityType, entityID, err)
	}
	st.State = state
	st.Revision = model.Revision(row.Revision)
	st.Deleted = row.Deleted
	st.UpdatedAt = row.UpdatedAt.UTC()
	return st, nil
}

func entriesFromRows(rows []auditEntryRow) []model.AuditEntry {
	out := make([]model.AuditEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].entry()
	}
	return out
}

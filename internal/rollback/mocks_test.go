package rollback_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/model"
)

type mockTx struct {
	mock.Mock
}

func (m *mockTx) AuditEntries(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	entries, _ := args.Get(0).([]model.AuditEntry)
	return entries, args.Error(1)
}

func (m *mockTx) AuditEntry(ctx context.Context, id model.EntryID) (*model.AuditEntry, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.AuditEntry)
	return e, args.Error(1)
}

func (m *mockTx) EntityState(ctx context.Context, entityType, entityID string) (model.EntityState, error) {
	args := m.Called(ctx, entityType, entityID)
	return args.Get(0).(model.EntityState), args.Error(1)
}

func (m *mockTx) AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockTx) ApplyEntitySnapshot(ctx context.Context, entityType, entityID, snapshot string) error {
	return m.Called(ctx, entityType, entityID, snapshot).Error(0)
}

func (m *mockTx) DeleteEntity(ctx context.Context, entityType, entityID string) error {
	return m.Called(ctx, entityType, entityID).Error(0)
}

// mockStore runs Atomically callbacks against tx and reports the callback's
// error, so a test sees exactly the calls a real transaction would make.
type mockStore struct {
	mockTx
	tx *mockTx
}

func newMockStore() *mockStore {
	return &mockStore{tx: new(mockTx)}
}

func (m *mockStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	m.Called(ctx)
	return fn(ctx, m.tx)
}

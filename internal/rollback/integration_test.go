package rollback_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/internal/audit"
	"github.com/gxp-audit/gxa/internal/entity"
	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/model"
)

type machineDoc struct {
	Status string `json:"status"`
}

func sqliteStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    "file:" + t.Name() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// write applies a state change and records it like the audited mutation
// path does.
func write(t *testing.T, s *storage.Store, signer *signature.Service, action model.Action, snap string) *model.AuditEntry {
	t.Helper()
	var appended *model.AuditEntry
	require.NoError(t, s.Atomically(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		before, err := tx.EntityState(ctx, "machines", "42")
		if err != nil {
			return err
		}
		if err := tx.ApplyEntitySnapshot(ctx, "machines", "42", snap); err != nil {
			return err
		}
		after, err := tx.EntityState(ctx, "machines", "42")
		if err != nil {
			return err
		}
		e := &model.AuditEntry{EntityType: "machines", EntityID: "42", Action: action, OldSnapshot: before.Snapshot(), NewSnapshot: after.Snapshot()}
		signer.Sign(e)
		appended = e
		return tx.AppendAuditEntry(ctx, e)
	}))
	return appended
}

func TestRollback_EndToEndSQLite(t *testing.T) {
	s := sqliteStore(t)
	signer := signature.NewService()
	reg := restore.NewRegistry()
	require.NoError(t, reg.Register("machines", restore.JSONHandler[machineDoc]("machines")))
	coord := rollback.NewCoordinator(s, reg, signer)
	ctx := context.Background()

	write(t, s, signer, model.ActionCreate, `{"status":"active"}`)
	update := write(t, s, signer, model.ActionUpdate, `{"status":"inactive"}`)

	outcome := coord.RequestRollback(ctx, operator, "machines", "42", update.ID, rollback.Static(true))
	require.Equal(t, model.OutcomeCompleted, outcome)

	st, err := s.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"active"}`, st.State)
	assert.Equal(t, model.Revision(3), st.Revision)

	entries, err := s.AuditEntries(ctx, "machines", "42")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	rb := entries[0]
	assert.Equal(t, model.ActionRollback, rb.Action)
	assert.Equal(t, `{"status":"inactive"}`, rb.OldSnapshot)
	assert.Equal(t, `{"status":"active"}`, rb.NewSnapshot)
	assert.True(t, signer.VerifyEntry(&rb))

	chain, err := s.StreamOldestFirst(ctx, "machines", "42")
	require.NoError(t, err)
	_, err = audit.VerifyChain(chain)
	assert.NoError(t, err)
}

func TestRollback_SameEntityRaceOneWins(t *testing.T) {
	s := sqliteStore(t)
	signer := signature.NewService()
	reg := restore.NewRegistry()
	require.NoError(t, reg.Register("machines", restore.JSONHandler[machineDoc]("machines")))
	coord := rollback.NewCoordinator(s, reg, signer)

	write(t, s, signer, model.ActionCreate, `{"status":"active"}`)
	update := write(t, s, signer, model.ActionUpdate, `{"status":"inactive"}`)

	req, err := coord.Prepare(context.Background(), update.ID)
	require.NoError(t, err)
	req.Confirmed = true

	outcomes := make([]model.RollbackOutcome, 2)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.Execute(context.Background(), operator, req)
			outcomes[i] = model.OutcomeOf(err)
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []model.RollbackOutcome{model.OutcomeCompleted, model.OutcomeConcurrencyConflict}, outcomes)
}

func TestRollback_RestoresDeletedEntity(t *testing.T) {
	s := sqliteStore(t)
	signer := signature.NewService()
	reg := restore.NewRegistry()
	require.NoError(t, reg.Register("machines", restore.JSONHandler[machineDoc]("machines")))
	coord := rollback.NewCoordinator(s, reg, signer)
	ctx := context.Background()

	write(t, s, signer, model.ActionCreate, `{"status":"active"}`)
	var del *model.AuditEntry
	require.NoError(t, s.Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
		before, err := tx.EntityState(ctx, "machines", "42")
		if err != nil {
			return err
		}
		if err := tx.DeleteEntity(ctx, "machines", "42"); err != nil {
			return err
		}
		del = &model.AuditEntry{EntityType: "machines", EntityID: "42", Action: model.ActionDelete, OldSnapshot: before.Snapshot(), NewSnapshot: model.EmptySnapshot}
		signer.Sign(del)
		return tx.AppendAuditEntry(ctx, del)
	}))

	require.Equal(t, model.OutcomeCompleted, coord.RequestRollback(ctx, operator, "machines", "42", del.ID, rollback.Static(true)))
	st, err := s.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.True(t, st.Exists())
	assert.Equal(t, `{"status":"active"}`, st.State)
}

func TestRollback_WriteAfterSelectionConflicts(t *testing.T) {
	s := sqliteStore(t)
	signer := signature.NewService()
	reg := restore.NewRegistry()
	require.NoError(t, reg.Register("machines", restore.JSONHandler[machineDoc]("machines")))
	coord := rollback.NewCoordinator(s, reg, signer)
	ctx := context.Background()

	write(t, s, signer, model.ActionCreate, `{"status":"active"}`)
	update := write(t, s, signer, model.ActionUpdate, `{"status":"inactive"}`)

	p, err := coord.Preview(ctx, update.ID)
	require.NoError(t, err)
	require.Equal(t, model.Revision(2), p.Revision)

	write(t, s, signer, model.ActionUpdate, `{"status":"maintenance"}`)

	target := rollback.Target{EntityType: "machines", EntityID: "42", EntryID: update.ID, ExpectedRevision: &p.Revision}
	_, err = coord.Request(ctx, operator, target, rollback.Static(true))
	assert.Equal(t, model.OutcomeConcurrencyConflict, model.OutcomeOf(err))

	st, err := s.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"maintenance"}`, st.State)
	assert.Equal(t, model.Revision(3), st.Revision)

	entries, err := s.AuditEntries(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRollback_CatalogHandlersRestoreHistoricalState(t *testing.T) {
	s := sqliteStore(t)
	signer := signature.NewService()
	reg := restore.NewRegistry()
	require.NoError(t, entity.RegisterHandlers(reg))
	coord := rollback.NewCoordinator(s, reg, signer)
	ctx := context.Background()

	// A partial snapshot with a field the Machine type no longer carries.
	write(t, s, signer, model.ActionCreate, `{"status":"active","legacy_zone":"B2"}`)
	update := write(t, s, signer, model.ActionUpdate, `{"status":"inactive"}`)

	require.Equal(t, model.OutcomeCompleted, coord.RequestRollback(ctx, operator, "machines", "42", update.ID, rollback.Static(true)))
	st, err := s.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"legacy_zone":"B2","status":"active"}`, st.State)
}

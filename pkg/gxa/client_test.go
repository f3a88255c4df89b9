package gxa_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/internal/events"
	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/config"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/gxa"
	"github.com/gxp-audit/gxa/pkg/metrics"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/webhook"
)

var operator = model.RequestContext{ActorID: "qa-lead", ActorIP: "10.0.0.5", ActorDevice: "cli", SessionID: "sess-1"}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	cfg.Webhooks.Enabled = false
	return cfg
}

func newClient(t *testing.T, cfg *config.Config) *gxa.Client {
	t.Helper()
	c, err := gxa.New(cfg, gxa.WithMetrics(metrics.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	_, err := gxa.New(cfg)
	assert.Error(t, err)
}

func TestClient_NotInitialized(t *testing.T) {
	c, err := gxa.New(testConfig(t))
	require.NoError(t, err)

	_, err = c.History(context.Background(), "machines", "42")
	assert.ErrorIs(t, err, gxa.ErrNotInitialized)
	assert.Equal(t, model.OutcomeApplyFailed,
		c.RequestRollback(context.Background(), operator, "machines", "42", 1, rollback.Static(true)))
	assert.NoError(t, c.Close())
}

func TestClient_CannotReinitializeAfterClose(t *testing.T) {
	c, err := gxa.New(testConfig(t), gxa.WithMetrics(metrics.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Close())
	assert.Error(t, c.Initialize(context.Background()))
}

func TestClient_MutateHistoryRollback(t *testing.T) {
	c := newClient(t, testConfig(t))
	ctx := context.Background()
	assert.Equal(t, []string{"assets", "machines", "parts", "settings"}, c.HandlerTypes())

	_, err := c.Put(ctx, operator, "machines", "42", `{"code":"M-42","name":"Autoclave","status":"active"}`, "")
	require.NoError(t, err)
	upd, err := c.Put(ctx, operator, "machines", "42", `{"code":"M-42","name":"Autoclave","status":"out_of_service"}`, "door seal")
	require.NoError(t, err)

	history, err := c.History(ctx, "machines", "42")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, upd.ID, history[0].ID)
	assert.Equal(t, model.SignatureValid, history[0].Signature)
	assert.True(t, history[0].Eligible)
	assert.False(t, history[1].Eligible, "a CREATE has nothing to roll back to")
	assert.Equal(t, model.Revision(2), history[0].Revision)

	check, err := c.VerifyEntry(ctx, upd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignatureValid, check.Signature)

	preview, err := c.Preview(ctx, upd.ID)
	require.NoError(t, err)
	assert.Equal(t, "Autoclave (M-42)", preview.DisplayName)
	assert.True(t, preview.CanRollback)
	assert.Equal(t, model.Revision(2), preview.Revision)

	outcome := c.RequestRollback(ctx, operator, "machines", "42", upd.ID, rollback.Static(true))
	require.Equal(t, model.OutcomeCompleted, outcome)

	st, err := c.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Contains(t, st.State, `"status":"active"`)

	result, err := c.Verify(ctx, "machines", "42")
	require.NoError(t, err)
	assert.False(t, result.TamperDetected)
	assert.Equal(t, 3, result.Entries)

	doc, err := c.Doctor(ctx, true)
	require.NoError(t, err)
	assert.True(t, doc.Healthy)
}

func TestClient_UnknownTypeAndMissingEntity(t *testing.T) {
	c := newClient(t, testConfig(t))
	ctx := context.Background()

	_, err := c.Put(ctx, operator, "widgets", "1", `{}`, "")
	assert.ErrorIs(t, err, errclass.ErrNameInvalid)

	_, err = c.EntityState(ctx, "machines", "404")
	assert.ErrorIs(t, err, errclass.ErrEntityNotFound)

	_, err = c.Entry(ctx, 12345)
	assert.ErrorIs(t, err, errclass.ErrEntryNotFound)
	assert.Equal(t, model.OutcomeNotFound,
		c.RequestRollback(ctx, operator, "machines", "404", 12345, rollback.Static(true)))
}

func TestClient_ExportIsNeverEligible(t *testing.T) {
	c := newClient(t, testConfig(t))
	ctx := context.Background()

	e, err := c.Export(ctx, operator, "machines", "42")
	require.NoError(t, err)
	assert.Equal(t, "export of machines/42", e.Note)

	check, err := c.VerifyEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignatureValid, check.Signature)
	assert.False(t, check.Eligible)
}

func TestClient_SubscribeReceivesCommittedEntries(t *testing.T) {
	c := newClient(t, testConfig(t))
	ctx := context.Background()
	sub := c.Subscribe(events.Filter{EntityType: "parts"})
	defer sub.Unsubscribe()

	_, err := c.Put(ctx, operator, "machines", "1", `{"code":"M-1","name":"Mixer"}`, "")
	require.NoError(t, err)
	put, err := c.Put(ctx, operator, "parts", "p-1", `{"code":"P-1","name":"Gasket"}`, "")
	require.NoError(t, err)

	select {
	case got := <-sub.C():
		assert.Equal(t, put.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestClient_WebhookDelivery(t *testing.T) {
	received := make(chan webhook.Event, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev webhook.Event
		if json.Unmarshal(body, &ev) == nil {
			received <- ev
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Webhooks.Enabled = true
	cfg.Webhooks.Hooks = []webhook.HookConfig{{URL: srv.URL, Events: []webhook.EventType{webhook.EventAll}, Enabled: true}}
	c := newClient(t, cfg)

	_, err := c.Put(context.Background(), operator, "settings", "retention", `{"key":"retention","value":"10","value_type":"int"}`, "")
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, webhook.EventEntityCreated, ev.Event)
		assert.Equal(t, "settings", ev.EntityType)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestClient_RollbackAbortsOnWriteAfterPreview(t *testing.T) {
	c := newClient(t, testConfig(t))
	ctx := context.Background()

	_, err := c.Put(ctx, operator, "machines", "42", `{"code":"M-42","name":"Autoclave","status":"active"}`, "")
	require.NoError(t, err)
	upd, err := c.Put(ctx, operator, "machines", "42", `{"code":"M-42","name":"Autoclave","status":"inactive"}`, "")
	require.NoError(t, err)

	preview, err := c.Preview(ctx, upd.ID)
	require.NoError(t, err)

	_, err = c.Put(ctx, operator, "machines", "42", `{"code":"M-42","name":"Autoclave","status":"maintenance"}`, "")
	require.NoError(t, err)

	target := rollback.Target{EntityType: "machines", EntityID: "42", EntryID: upd.ID, ExpectedRevision: &preview.Revision}
	rb, err := c.Rollback(ctx, operator, target, rollback.Static(true))
	assert.Nil(t, rb)
	assert.Equal(t, model.OutcomeConcurrencyConflict, model.OutcomeOf(err))

	st, err := c.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Contains(t, st.State, `"status":"maintenance"`)
}

func TestClient_RollbackRestoresSnapshotFailingCurrentRules(t *testing.T) {
	c := newClient(t, testConfig(t))
	ctx := context.Background()
	signer := signature.NewService()

	// Recorded before machines required a code and a name.
	var upd *model.AuditEntry
	for _, snap := range []string{`{"status":"active"}`, `{"status":"inactive"}`} {
		snap := snap
		require.NoError(t, c.Store().Atomically(ctx, func(ctx context.Context, tx storage.Tx) error {
			before, err := tx.EntityState(ctx, "machines", "42")
			if err != nil {
				return err
			}
			if err := tx.ApplyEntitySnapshot(ctx, "machines", "42", snap); err != nil {
				return err
			}
			e := &model.AuditEntry{EntityType: "machines", EntityID: "42", Action: model.ActionUpdate, OldSnapshot: before.Snapshot(), NewSnapshot: snap}
			signer.Sign(e)
			upd = e
			return tx.AppendAuditEntry(ctx, e)
		}))
	}

	target := rollback.Target{EntityType: "machines", EntityID: "42", EntryID: upd.ID}
	_, err := c.Rollback(ctx, operator, target, rollback.Static(true))
	require.NoError(t, err)

	st, err := c.EntityState(ctx, "machines", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"active"}`, st.State)
}

func TestClient_CloseFlushesQueuedWebhooks(t *testing.T) {
	received := make(chan webhook.Event, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev webhook.Event
		if json.Unmarshal(body, &ev) == nil {
			received <- ev
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Webhooks.Enabled = true
	cfg.Webhooks.Hooks = []webhook.HookConfig{{URL: srv.URL, Events: []webhook.EventType{webhook.EventAll}, Enabled: true}}
	c := newClient(t, cfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.Put(ctx, operator, "parts", fmt.Sprintf("p-%d", i), fmt.Sprintf(`{"code":"P-%d","name":"Gasket"}`, i), "")
		require.NoError(t, err)
	}
	require.NoError(t, c.Close())
	assert.Len(t, received, 5)
}

package entity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/internal/entity"
	"github.com/gxp-audit/gxa/internal/mutation"
	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/model"
)

var operator = model.RequestContext{ActorID: "qa-lead", ActorIP: "10.1.1.1", ActorDevice: "test", SessionID: "s-9"}

func intPtr(v int) *int { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       interface{ Validate() error }
		wantErr bool
	}{
		{"machine ok", entity.Machine{Code: "M-1", Name: "Autoclave", Status: "active"}, false},
		{"machine missing code", entity.Machine{Name: "Autoclave"}, true},
		{"machine bad status", entity.Machine{Code: "M-1", Name: "A", Status: "broken"}, true},
		{"asset ok", entity.Asset{Code: "A-1", Name: "Fridge", RiskScore: intPtr(40)}, false},
		{"asset risk out of range", entity.Asset{Code: "A-1", Name: "Fridge", RiskScore: intPtr(140)}, true},
		{"part ok", entity.Part{Code: "P-1", Name: "Gasket", Stock: intPtr(3)}, false},
		{"part negative stock", entity.Part{Code: "P-1", Name: "Gasket", Stock: intPtr(-1)}, true},
		{"setting ok", entity.Setting{Key: "retention_days", Value: "3650", ValueType: "int"}, false},
		{"setting bad int", entity.Setting{Key: "retention_days", Value: "ten", ValueType: "int"}, true},
		{"setting unknown type", entity.Setting{Key: "k", ValueType: "date"}, true},
		{"setting missing key", entity.Setting{Value: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	name, ok := entity.DisplayName(entity.TypeMachines, `{"code":"M-7","name":"Tablet press"}`)
	assert.True(t, ok)
	assert.Equal(t, "Tablet press (M-7)", name)

	name, ok = entity.DisplayName(entity.TypeSettings, `{"key":"audit.retention","value":"10"}`)
	assert.True(t, ok)
	assert.Equal(t, "audit.retention", name)

	_, ok = entity.DisplayName(entity.TypeParts, `{}`)
	assert.False(t, ok)
	_, ok = entity.DisplayName(entity.TypeParts, `not json`)
	assert.False(t, ok)
	_, ok = entity.DisplayName("widgets", `{"name":"x"}`)
	assert.False(t, ok)
}

func TestTypesAndRegisterHandlers(t *testing.T) {
	assert.Equal(t, []string{"assets", "machines", "parts", "settings"}, entity.Types())
	assert.True(t, entity.Known("machines"))
	assert.False(t, entity.Known("widgets"))

	reg := restore.NewRegistry()
	require.NoError(t, entity.RegisterHandlers(reg))
	assert.Equal(t, entity.Types(), reg.Types())
}

func openStore(t *testing.T) *storage.Store {
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

func TestWriters_PutDeleteAndRollback(t *testing.T) {
	s := openStore(t)
	signer := signature.NewService()
	rec := mutation.NewRecorder(s, signer)
	writers, err := entity.Writers(rec)
	require.NoError(t, err)
	require.Len(t, writers, 4)
	ctx := context.Background()

	w := writers[entity.TypeMachines]
	_, err = w.Put(ctx, operator, "42", `{"code":"M-42","name":"Autoclave","status":"active"}`, "")
	require.NoError(t, err)
	upd, err := w.Put(ctx, operator, "42", `{"code":"M-42","name":"Autoclave","status":"maintenance"}`, "PM due")
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdate, upd.Action)

	_, err = w.Put(ctx, operator, "42", `{"code":"M-42","name":"Autoclave","colour":"red"}`, "")
	assert.ErrorIs(t, err, errclass.ErrSnapshotInvalid)

	reg := restore.NewRegistry()
	require.NoError(t, entity.RegisterHandlers(reg))
	coord := rollback.NewCoordinator(s, reg, signer, rollback.WithDisplayNames(entity.DisplayName))

	outcome := coord.RequestRollback(ctx, operator, entity.TypeMachines, "42", upd.ID, rollback.Static(true))
	require.Equal(t, model.OutcomeCompleted, outcome)

	st, err := s.EntityState(ctx, entity.TypeMachines, "42")
	require.NoError(t, err)
	assert.Equal(t, `{"code":"M-42","name":"Autoclave","status":"active"}`, st.State)

	del, err := w.Delete(ctx, operator, "42", "")
	require.NoError(t, err)
	assert.Equal(t, model.EmptySnapshot, del.NewSnapshot)
}

package model_test

import (
	"fmt"
	"testing"

	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryID_RoundTrip(t *testing.T) {
	id, err := model.ParseEntryID("1708300800000123")
	require.NoError(t, err)
	assert.Equal(t, "1708300800000123", id.String())
}

func TestParseEntryID_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "-5", "0"} {
		_, err := model.ParseEntryID(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestAuditEntry_Header(t *testing.T) {
	e := &model.AuditEntry{Action: model.ActionUpdate, EntityType: "machines", EntityID: "42"}
	assert.Equal(t, "UPDATE • machines #42", e.Header())
	assert.Equal(t, "System", e.UserDisplay())

	empty := &model.AuditEntry{}
	assert.Equal(t, "AUDIT • system", empty.Header())
}

func TestEntityState_Snapshot(t *testing.T) {
	missing := &model.EntityState{}
	assert.False(t, missing.Exists())
	assert.Equal(t, model.EmptySnapshot, missing.Snapshot())

	deleted := &model.EntityState{Revision: 3, Deleted: true, State: `{"a":1}`}
	assert.Equal(t, model.EmptySnapshot, deleted.Snapshot())

	live := &model.EntityState{Revision: 1, State: `{"a":1}`}
	assert.True(t, live.Exists())
	assert.Equal(t, `{"a":1}`, live.Snapshot())
}

func TestRequestContext_Stamp(t *testing.T) {
	rc := model.RequestContext{ActorID: "alice", ActorIP: "10.0.0.1", ActorDevice: "ws-3", SessionID: "s1"}
	var e model.AuditEntry
	rc.Stamp(&e)
	assert.Equal(t, "alice", e.ActorID)
	assert.Equal(t, "10.0.0.1", e.ActorIP)
	assert.Equal(t, "ws-3", e.ActorDevice)
	assert.Equal(t, "s1", e.SessionID)
}

func TestOutcomeOf(t *testing.T) {
	cases := map[model.RollbackOutcome]error{
		model.OutcomeCompleted:           nil,
		model.OutcomeIneligible:          errclass.ErrIneligible,
		model.OutcomeSignatureInvalid:    fmt.Errorf("wrap: %w", errclass.ErrSignatureInvalid),
		model.OutcomeNoHandler:           errclass.ErrNoHandler.WithMessage("machines"),
		model.OutcomeConcurrencyConflict: errclass.ErrConcurrencyConflict,
		model.OutcomeCancelled:           errclass.ErrCancelled,
		model.OutcomeNotFound:            errclass.ErrEntryNotFound,
		model.OutcomeApplyFailed:         fmt.Errorf("disk full"),
	}
	for want, err := range cases {
		assert.Equal(t, want, model.OutcomeOf(err))
	}
}

func TestRollbackOutcome_Status(t *testing.T) {
	assert.Contains(t, model.OutcomeCompleted.Status(), "restored")
	assert.Contains(t, model.OutcomeSignatureInvalid.Status(), "signature is invalid")
	assert.Equal(t, "Unknown rollback outcome.", model.RollbackOutcome("bogus").Status())
}

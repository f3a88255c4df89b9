package events_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/internal/events"
	"github.com/gxp-audit/gxa/pkg/model"
)

func entry(id int, entityType, entityID string, action model.Action) model.AuditEntry {
	return model.AuditEntry{ID: model.EntryID(id), EntityType: entityType, EntityID: entityID, Action: action}
}

func receive(t *testing.T, sub *events.Subscription) model.AuditEntry {
	t.Helper()
	select {
	case e, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.AuditEntry{}
}

func TestBroker_FIFOPerEntity(t *testing.T) {
	b := events.NewBroker()
	defer b.Close()
	sub := b.Subscribe(events.Filter{EntityType: "machines", EntityID: "42"})

	for i := 1; i <= 100; i++ {
		b.Publish(entry(i, "machines", "42", model.ActionUpdate))
		b.Publish(entry(1000+i, "machines", "43", model.ActionUpdate))
	}
	for i := 1; i <= 100; i++ {
		got := receive(t, sub)
		assert.Equal(t, model.EntryID(i), got.ID, "position %d", i)
	}
}

func TestBroker_ActionFilter(t *testing.T) {
	b := events.NewBroker()
	defer b.Close()
	sub := b.Subscribe(events.Filter{Actions: []model.Action{model.ActionRollback}})

	b.Publish(entry(1, "machines", "1", model.ActionUpdate), entry(2, "assets", "9", model.ActionRollback))
	assert.Equal(t, model.EntryID(2), receive(t, sub).ID)
}

func TestBroker_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := events.NewBroker()
	defer b.Close()
	sub := b.Subscribe(events.Filter{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(entry(i+1, "parts", strconv.Itoa(i%3), model.ActionCreate))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an idle subscriber")
	}
	assert.Equal(t, model.EntryID(1), receive(t, sub).ID)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := events.NewBroker()
	sub := b.Subscribe(events.Filter{})
	require.Equal(t, 1, b.Subscribers())

	sub.Unsubscribe()
	assert.Equal(t, 0, b.Subscribers())
	assert.NotPanics(t, sub.Unsubscribe)

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
	b.Publish(entry(1, "machines", "1", model.ActionCreate))
}

func TestBroker_DrainDeliversQueuedEntries(t *testing.T) {
	b := events.NewBroker()
	sub := b.Subscribe(events.Filter{})
	for i := 1; i <= 20; i++ {
		b.Publish(entry(i, "machines", "1", model.ActionUpdate))
	}

	sub.Drain()
	assert.Equal(t, 0, b.Subscribers())
	b.Publish(entry(21, "machines", "1", model.ActionUpdate))

	var got []model.EntryID
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				require.Len(t, got, 20)
				assert.Equal(t, model.EntryID(1), got[0])
				assert.Equal(t, model.EntryID(20), got[19])
				return
			}
			got = append(got, e.ID)
		case <-timeout:
			t.Fatalf("channel not closed after %d entries", len(got))
		}
	}
}

func TestBroker_CloseClosesSubscriptions(t *testing.T) {
	b := events.NewBroker()
	sub := b.Subscribe(events.Filter{})
	b.Close()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	late := b.Subscribe(events.Filter{})
	_, ok := <-late.C()
	assert.False(t, ok)
}

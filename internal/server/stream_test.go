package server_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/pkg/model"
)

func dialEvents(t *testing.T, baseURL, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/events"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEntry(t *testing.T, conn *websocket.Conn) model.AuditEntry {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var e model.AuditEntry
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestEventStream_PushesCommittedEntries(t *testing.T) {
	ts, _ := setup(t)
	conn := dialEvents(t, ts.URL, "")

	resp := do(t, http.MethodPut, ts.URL+"/entities/machines/42", `{"code":"M-42","name":"Autoclave","status":"active"}`, actor)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPut, ts.URL+"/entities/machines/42", `{"code":"M-42","name":"Autoclave B","status":"active"}`, actor)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	first := readEntry(t, conn)
	assert.Equal(t, model.ActionCreate, first.Action)
	assert.Equal(t, "qa-lead", first.ActorID)
	second := readEntry(t, conn)
	assert.Equal(t, model.ActionUpdate, second.Action)
	assert.Equal(t, first.RecordHash, second.PrevHash)
}

func TestEventStream_Filter(t *testing.T) {
	ts, _ := setup(t)
	conn := dialEvents(t, ts.URL, "entity_type=parts&action=create")

	do(t, http.MethodPut, ts.URL+"/entities/machines/42", `{"code":"M-42","name":"Autoclave"}`, actor)
	do(t, http.MethodPut, ts.URL+"/entities/parts/p1", `{"code":"P-1","name":"Gasket"}`, actor)
	do(t, http.MethodPut, ts.URL+"/entities/parts/p1", `{"code":"P-1","name":"Gasket 2"}`, actor)
	do(t, http.MethodPut, ts.URL+"/entities/parts/p2", `{"code":"P-2","name":"Seal"}`, actor)

	e := readEntry(t, conn)
	assert.Equal(t, "parts", e.EntityType)
	assert.Equal(t, "p1", e.EntityID)
	e = readEntry(t, conn)
	assert.Equal(t, "p2", e.EntityID)
	assert.Equal(t, model.ActionCreate, e.Action)
}

func TestEventStream_RequiresUpgrade(t *testing.T) {
	ts, _ := setup(t)
	resp := do(t, http.MethodGet, ts.URL+"/events", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

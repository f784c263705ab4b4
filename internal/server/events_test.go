package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *EventHub) (*websocket.Conn, func()) {
	t.Helper()

	ts := httptest.NewServer(newWSHandler(hub))
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func newWSHandler(hub *EventHub) http.Handler {
	return http.HandlerFunc(hub.HandleWS)
}

func waitForClients(t *testing.T, hub *EventHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventHub_BroadcastReachesClient(t *testing.T) {
	hub := NewEventHub(0, zerolog.Nop())
	defer hub.Close()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	waitForClients(t, hub, 1)

	hub.Broadcast("chat.completed", map[string]interface{}{
		"session_id": "sess-1",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "chat.completed", msg.Event)
	assert.Equal(t, int64(1), msg.Seq)
	assert.NotZero(t, msg.Timestamp)
}

func TestEventHub_SequenceIncrements(t *testing.T) {
	hub := NewEventHub(0, zerolog.Nop())
	defer hub.Close()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	waitForClients(t, hub, 1)

	hub.Broadcast("first", nil)
	hub.Broadcast("second", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var seqs []int64
	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg EventMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		seqs = append(seqs, msg.Seq)
	}

	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestEventHub_ClientDisconnectIsDropped(t *testing.T) {
	hub := NewEventHub(0, zerolog.Nop())
	defer hub.Close()

	conn, cleanup := dialHub(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	cleanup()

	waitForClients(t, hub, 0)
}

func TestEventHub_BroadcastWithNoClients(t *testing.T) {
	hub := NewEventHub(0, zerolog.Nop())
	defer hub.Close()

	// Must not panic or block
	hub.Broadcast("chat.completed", nil)
	assert.Equal(t, 0, hub.Count())
}

func TestEventHub_Close(t *testing.T) {
	hub := NewEventHub(10*time.Millisecond, zerolog.Nop())

	_, cleanup := dialHub(t, hub)
	defer cleanup()

	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Count())

	// Close is idempotent
	hub.Close()
}

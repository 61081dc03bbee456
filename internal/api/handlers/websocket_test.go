package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/scanner"
)

func dialHub(t *testing.T, hub *EventHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestEventHub_StreamsEvents(t *testing.T) {
	hub := NewEventHub(testLogger(), metrics.NewPrometheusMetrics())
	defer hub.Close()

	first := dialHub(t, hub)
	second := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.OnEvent(scanner.Event{
		Type:      scanner.EventResult,
		ScanID:    "scan-1",
		Timestamp: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Data:      scanner.Outcome{Address: "10.0.0.1", Status: scanner.StatusActive, Hostname: "router.lan"},
	})
	hub.OnEvent(scanner.Event{
		Type:   scanner.EventComplete,
		ScanID: "scan-1",
		Data:   scanner.CompleteData{Results: []scanner.Outcome{}, Canceled: true},
	})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readEvent(t, conn)
		assert.Equal(t, "result", msg["type"])
		assert.Equal(t, "scan-1", msg["scan_id"])
		assert.Equal(t, "2026-10-01T12:00:00Z", msg["timestamp"])
		data := msg["data"].(map[string]interface{})
		assert.Equal(t, "10.0.0.1", data["address"])
		assert.Equal(t, "active", data["status"])
		assert.Equal(t, "router.lan", data["hostname"])

		msg = readEvent(t, conn)
		assert.Equal(t, "complete", msg["type"])
		assert.Equal(t, true, msg["data"].(map[string]interface{})["canceled"])
	}
}

func TestEventHub_Unregister(t *testing.T) {
	hub := NewEventHub(testLogger(), nil)
	defer hub.Close()

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventHub_Close(t *testing.T) {
	hub := NewEventHub(testLogger(), nil)

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection is closed by the hub")
	assert.Equal(t, 0, hub.ClientCount())

	assert.Error(t, hub.Broadcast(scanner.Event{Type: scanner.EventStart}))
}

func TestEventHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewEventHub(testLogger(), nil)
	defer hub.Close()

	for i := 0; i < 10; i++ {
		hub.OnEvent(scanner.Event{Type: scanner.EventInitiate, Data: scanner.InitiateData{Address: "10.0.0.1"}})
	}
	assert.Equal(t, 0, hub.ClientCount())
}

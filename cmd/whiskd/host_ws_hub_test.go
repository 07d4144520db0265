package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the hub and the frame plumbing without a network.
// Clients carry a nil websocket.Conn; the hub guards against nil on close.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(discardLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func startHub(t *testing.T, hub *Hub) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for hub to stop")
		}
	}
}

func testClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		id:         name,
		remoteAddr: name,
		logger:     discardLogger(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.id+" not registered in time")
}

func recvFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for frame")
		return nil
	}
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	stop := startHub(t, hub)
	defer stop()

	c1 := testClient(hub, "c1", 4)
	c2 := testClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)
	assert.Equal(t, 2, hub.ClientCount())

	msg := []byte(`{"type":"progress","data":{"displayed_progress":40}}`)

	// Direct send: BroadcastBytes may drop while the hub goroutine is scheduling.
	hub.broadcast <- msg

	assert.Equal(t, string(msg), string(recvFrame(t, c1.send)))
	assert.Equal(t, string(msg), string(recvFrame(t, c2.send)))
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	stop := startHub(t, hub)
	defer stop()

	slow := testClient(hub, "slow", 1)
	fast := testClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"physics","data":{"resistance":0.5}}`)
	hub.broadcast <- msg

	assert.Equal(t, string(msg), string(recvFrame(t, fast.send)))

	// Drain the pre-filled frame, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_BroadcastBytesReportsFullQueue(t *testing.T) {
	// Hub not running: the queue only drains when Run is active.
	hub := newTestHub(t, 1, 1)
	assert.True(t, hub.BroadcastBytes([]byte("a")))
	assert.False(t, hub.BroadcastBytes([]byte("b")))
}

func TestClient_ForwardDecodesInboundFrames(t *testing.T) {
	events := make(chan Event, 4)
	c := testClient(nil, "host", 1)
	c.events = events

	c.forward([]byte(`{"type":"pointer_moved","data":{"x":12.5,"y":-3}}`))
	c.forward([]byte(`{"type":"not_a_thing"}`))
	c.forward([]byte(`{"type":"drag_started"}`))

	require.Len(t, events, 2)
	assert.Equal(t, PointerMoved{X: 12.5, Y: -3}, <-events)
	assert.Equal(t, DragStarted{}, <-events)
}

func TestClient_ForwardDropsWhenQueueFull(t *testing.T) {
	events := make(chan Event, 1)
	c := testClient(nil, "host", 1)
	c.events = events

	c.forward([]byte(`{"type":"mark_noticed"}`))
	c.forward([]byte(`{"type":"dump_analytics"}`))

	require.Len(t, events, 1)
	assert.Equal(t, MarkNoticed{}, <-events)
}

type decodedFrame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func decodeFrame(t *testing.T, b []byte) decodedFrame {
	t.Helper()
	var f decodedFrame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestServer_SinksPublishTypedFrames(t *testing.T) {
	s := NewServer(discardLogger(), nil, ServerConfig{Hub: HubConfig{BroadcastBuf: 8}})

	require.NoError(t, s.ApplyPhysics(PhysicsOutput{Resistance: 0.4, Responsiveness: 0.003}))
	s.JournalLine("2026-01-01T00:00:00.000Z - Drag duration: 1000ms")
	s.JournalWarning("log could not be saved: disk full")
	require.NoError(t, s.EmitDiagnostic(AnalyticsReport{Freezes: 2}))

	want := []string{"physics", "log_line", "notice", "analytics"}
	for _, typ := range want {
		f := decodeFrame(t, <-s.hub.broadcast)
		assert.Equal(t, typ, f.Type)
		assert.NotNil(t, f.Ts)
	}
}

func TestServer_ApplyPhysicsFailsWhenHubBusy(t *testing.T) {
	s := NewServer(discardLogger(), nil, ServerConfig{Hub: HubConfig{BroadcastBuf: 1}})

	require.NoError(t, s.ApplyPhysics(PhysicsOutput{Resistance: 0.1}))
	assert.ErrorIs(t, s.ApplyPhysics(PhysicsOutput{Resistance: 0.2}), errHubBusy)
}

func TestRunBroadcaster_CoalescesProgressLatestWins(t *testing.T) {
	hub := newTestHub(t, 4, 16)
	src := make(chan StateBroadcast, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBroadcaster(ctx, hub, src, discardLogger())

	for _, v := range []float64{10, 20, 30} {
		src <- BroadcastProgressChanged{Displayed: v}
	}

	var frame []byte
	select {
	case frame = <-hub.broadcast:
	case <-time.After(10 * wsProgressCoalesceWindow):
		t.Fatalf("timeout waiting for coalesced progress frame")
	}

	f := decodeFrame(t, frame)
	assert.Equal(t, "progress", f.Type)

	var data wsProgressData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, 30.0, data.DisplayedProgress)

	select {
	case extra := <-hub.broadcast:
		t.Fatalf("unexpected extra frame %s", extra)
	case <-time.After(3 * wsProgressCoalesceWindow):
	}
}

func TestSnapshotPayloadCarriesPhase(t *testing.T) {
	p := snapshotPayload(StateSnapshot{DisplayedProgress: 40, TrueProgress: 55, Phase: PhaseFrozen, Freezes: 1})
	assert.Equal(t, "frozen", p.Phase)
	assert.Equal(t, 40.0, p.DisplayedProgress)
	assert.Equal(t, 1, p.Freezes)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

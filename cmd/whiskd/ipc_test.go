package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortSocketPath keeps unix socket paths under the sun_path limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "whiskd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestIPC_SendEventReachesQueue(t *testing.T) {
	socket := shortSocketPath(t)
	events := make(chan Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socket, events, discardLogger()) }()

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, "socket not created")

	require.NoError(t, SendIPCEvent(socket, BodyObserved{X: 3, Y: 4, AngularVelocity: 0.5}))
	require.NoError(t, SendIPCEvent(socket, MarkNoticed{}))

	assert.Equal(t, BodyObserved{X: 3, Y: 4, AngularVelocity: 0.5}, <-events)
	assert.Equal(t, MarkNoticed{}, <-events)

	info, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o660), info.Mode().Perm())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("IPC server did not stop")
	}
	_, err = os.Stat(socket)
	assert.True(t, os.IsNotExist(err), "socket removed on shutdown")
}

func TestSendIPCEvent_NoDaemon(t *testing.T) {
	err := SendIPCEvent(shortSocketPath(t), DragStarted{})
	require.ErrorContains(t, err, "connect to")
}

// rwPair feeds serveIPC from a fixed input and records its output.
type rwPair struct {
	in  *strings.Reader
	out bytes.Buffer
}

func (p *rwPair) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *rwPair) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestServeIPC_Responses(t *testing.T) {
	events := make(chan Event, 1)
	rw := &rwPair{in: strings.NewReader(strings.Join([]string{
		`{"type":"drag_started"}`,
		``,
		`{"type":"levitate"}`,
		`{"type":"drag_ended"}`,
	}, "\n"))}

	serveIPC(rw, events, discardLogger())

	var got []IPCResponse
	dec := json.NewDecoder(&rw.out)
	for dec.More() {
		var r IPCResponse
		require.NoError(t, dec.Decode(&r))
		got = append(got, r)
	}

	require.Len(t, got, 3, "blank lines get no response")
	assert.Equal(t, "ok", got[0].Status)
	assert.Equal(t, "error", got[1].Status)
	assert.Contains(t, got[1].Error, "unknown event type")
	assert.Equal(t, IPCResponse{Status: "error", Error: "event queue full"}, got[2])
	assert.Equal(t, DragStarted{}, <-events)
}

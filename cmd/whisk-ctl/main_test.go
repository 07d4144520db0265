package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon accepts one connection, records the request line and replies.
func fakeDaemon(t *testing.T, reply IPCResponse) (socket string, got <-chan map[string]any) {
	t.Helper()
	dir, err := os.MkdirTemp("", "wctl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	socket = filepath.Join(dir, "s.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ch := make(chan map[string]any, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		var m map[string]any
		_ = json.Unmarshal(line, &m)
		ch <- m
		_ = json.NewEncoder(conn).Encode(reply)
	}()
	return socket, ch
}

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNotice_SendsMarkNoticed(t *testing.T) {
	socket, got := fakeDaemon(t, IPCResponse{Status: "ok"})

	out, err := runCtl(t, "--socket", socket, "notice")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	req := <-got
	assert.Equal(t, "mark_noticed", req["type"])
	assert.NotContains(t, req, "data")
}

func TestBody_SendsPayload(t *testing.T) {
	socket, got := fakeDaemon(t, IPCResponse{Status: "ok"})

	_, err := runCtl(t, "--socket", socket, "body", "550", "300", "-0.25")
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, "body_observed", req["type"])
	assert.Equal(t, map[string]any{"x": 550.0, "y": 300.0, "angular_velocity": -0.25}, req["data"])
}

func TestPointer_NegativeCoordinates(t *testing.T) {
	socket, got := fakeDaemon(t, IPCResponse{Status: "ok"})

	_, err := runCtl(t, "--socket", socket, "pointer", "--", "-12.5", "-3")
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, "pointer_moved", req["type"])
	assert.Equal(t, map[string]any{"x": -12.5, "y": -3.0}, req["data"])
}

func TestBody_NegativeOperandsAfterFirst(t *testing.T) {
	socket, got := fakeDaemon(t, IPCResponse{Status: "ok"})

	_, err := runCtl(t, "--socket", socket, "body", "550", "-40", "-1e-3")
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, map[string]any{"x": 550.0, "y": -40.0, "angular_velocity": -0.001}, req["data"])
}

func TestPointer_RejectsNonNumeric(t *testing.T) {
	_, err := runCtl(t, "--socket", "/nonexistent", "pointer", "1", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid number "abc"`)
}

func TestDaemonErrorIsReported(t *testing.T) {
	socket, _ := fakeDaemon(t, IPCResponse{Status: "error", Error: "event queue full"})

	_, err := runCtl(t, "--socket", socket, "drag-start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event queue full")
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Local tools (whisk-ctl, scripts, test rigs) drive the same input events the
// host page sends over the websocket: drag edges, pointer and body samples,
// the notice marker and the analytics dump.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	socketPath = ExpandPath(socketPath)
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Owner and group only; the socket injects participant input.
	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go func() {
			defer conn.Close()
			serveIPC(conn, events, logger)
		}()
	}
}

// serveIPC answers every request line read from rw with one response line.
func serveIPC(rw io.ReadWriter, events chan<- Event, logger *slog.Logger) {
	scanner := bufio.NewScanner(rw)
	encoder := json.NewEncoder(rw)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		resp := IPCResponse{Status: "ok"}
		ev, err := UnmarshalEvent([]byte(line))
		switch {
		case err != nil:
			resp = IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)}
		default:
			select {
			case events <- ev:
			default:
				resp = IPCResponse{Status: "error", Error: "event queue full"}
			}
		}

		if encErr := encoder.Encode(resp); encErr != nil {
			logger.Error("IPC failed to send response", "error", encErr)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("IPC connection read error", "error", err)
	}
}

// ============================================================================
// IPC Client
// ============================================================================

// ipcDialTimeout bounds connect and round trip for SendIPCEvent.
const ipcDialTimeout = 2 * time.Second

// SendIPCEvent sends one event to the daemon and waits for its response.
func SendIPCEvent(socketPath string, ev Event) error {
	conn, err := net.DialTimeout("unix", ExpandPath(socketPath), ipcDialTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcDialTimeout))

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}

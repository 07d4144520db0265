package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// ============================================================================
// whisk-ctl - Command-line IPC Client
// ============================================================================
// Sends input events to whiskd over its Unix domain socket.
//
// Usage:
//   whisk-ctl notice
//   whisk-ctl analytics
//   whisk-ctl drag-start
//   whisk-ctl drag-end
//   whisk-ctl pointer 410 220
//   whisk-ctl body 550 300 -0.8
//   whisk-ctl pointer -- -15 220    ("--" before a negative first operand)
//
// Options:
//   --socket PATH    Unix domain socket path (default: /tmp/whiskd.sock)
// ============================================================================

// envelope mirrors the daemon's event envelope (standalone binary).
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type pointerMoved struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type bodyObserved struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	AngularVelocity float64 `json:"angular_velocity"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const sendTimeout = 2 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socketPath string

	root := &cobra.Command{
		Use:           "whisk-ctl",
		Short:         "Send input events to whiskd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/whiskd.sock", "whiskd IPC socket path")

	simple := func(use, short, typ string, aliases ...string) *cobra.Command {
		return &cobra.Command{
			Use:     use,
			Short:   short,
			Aliases: aliases,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return send(cmd, socketPath, envelope{Type: typ})
			},
		}
	}

	root.AddCommand(
		simple("notice", "Record that the participant noticed a change", "mark_noticed", "c"),
		simple("analytics", "Dump the analytics report", "dump_analytics", "d"),
		simple("drag-start", "Press on the dragged body", "drag_started"),
		simple("drag-end", "Release the dragged body", "drag_ended"),
		newPointerCmd(&socketPath),
		newBodyCmd(&socketPath),
	)
	return root
}

// numericArgs stops flag parsing at the first operand so later negative
// numbers stay positional. A negative first operand needs a leading "--".
func numericArgs(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newPointerCmd(socketPath *string) *cobra.Command {
	return numericArgs(&cobra.Command{
		Use:   "pointer [--] <x> <y>",
		Short: "Report a pointer position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloats(args)
			if err != nil {
				return err
			}
			return send(cmd, *socketPath, envelope{Type: "pointer_moved", Data: pointerMoved{X: v[0], Y: v[1]}})
		},
	})
}

func newBodyCmd(socketPath *string) *cobra.Command {
	return numericArgs(&cobra.Command{
		Use:   "body [--] <x> <y> <angular-velocity>",
		Short: "Report the dragged body's position and spin",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloats(args)
			if err != nil {
				return err
			}
			return send(cmd, *socketPath, envelope{Type: "body_observed", Data: bodyObserved{X: v[0], Y: v[1], AngularVelocity: v[2]}})
		},
	})
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", a, err)
		}
		out[i] = v
	}
	return out, nil
}

func send(cmd *cobra.Command, socketPath string, env envelope) error {
	if err := sendEnvelope(socketPath, env); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func sendEnvelope(socketPath string, env envelope) error {
	conn, err := net.DialTimeout("unix", socketPath, sendTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(sendTimeout))

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Status != "ok" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

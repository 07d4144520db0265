package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// PhysicsSink receives physics writes destined for the host simulation.
type PhysicsSink interface {
	ApplyPhysics(out PhysicsOutput) error
}

// DiagnosticSink receives on-demand analytics reports.
type DiagnosticSink interface {
	EmitDiagnostic(r AnalyticsReport) error
}

// writerDiagnostics prints reports as text, e.g. to stderr.
type writerDiagnostics struct {
	w io.Writer
}

func (d writerDiagnostics) EmitDiagnostic(r AnalyticsReport) error {
	_, err := io.WriteString(d.w, r.Format())
	return err
}

// multiDiagnostics fans a report out to every sink and returns the first error.
type multiDiagnostics []DiagnosticSink

func (m multiDiagnostics) EmitDiagnostic(r AnalyticsReport) error {
	var first error
	for _, d := range m {
		if err := d.EmitDiagnostic(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// effectDeps are the collaborators the effects layer talks to.
type effectDeps struct {
	physics     PhysicsSink
	journal     *Journal
	diagnostics DiagnosticSink
}

// runEffect executes a single reducer-emitted Command and reports observations via onEvent.
//
// This is the only place that performs I/O on behalf of the reducer. It never
// calls Reduce() directly.
func runEffect(
	ctx context.Context,
	deps effectDeps,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdApplyPhysics:
		if deps.physics == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoSink{name: "physics"}, At: now})
			return
		}
		if err := deps.physics.ApplyPhysics(c.Output); err != nil {
			logger.Warn("physics write failed", "error", err, "output", c.Output.String())
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(PhysicsApplied{Output: c.Output, At: now})

	case CmdAppendLog:
		if deps.journal == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoSink{name: "journal"}, At: now})
			return
		}
		at := c.At
		if at.IsZero() {
			at = now
		}
		line := deps.journal.Append(at, c.Message)
		logger.Debug("journal", "line", line)

	case CmdEmitDiagnostic:
		if deps.diagnostics == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoSink{name: "diagnostics"}, At: now})
			return
		}
		if err := deps.diagnostics.EmitDiagnostic(c.Report); err != nil {
			logger.Warn("diagnostic emit failed", "error", err)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(EffectFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

// errNoSink indicates a command arrived without the collaborator that executes it.
type errNoSink struct {
	name string
}

func (e errNoSink) Error() string { return fmt.Sprintf("no %s sink", e.name) }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }

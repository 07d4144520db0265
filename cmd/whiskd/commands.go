package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdApplyPhysics writes resistance, responsiveness and the lock command to the host.
type CmdApplyPhysics struct {
	Output PhysicsOutput
}

func (CmdApplyPhysics) commandMarker() {}
func (c CmdApplyPhysics) String() string {
	return fmt.Sprintf("CmdApplyPhysics(%s)", c.Output)
}

// CmdAppendLog appends one line to the journal. At is the wall-clock label.
type CmdAppendLog struct {
	Message string
	At      time.Time
}

func (CmdAppendLog) commandMarker()   {}
func (c CmdAppendLog) String() string { return fmt.Sprintf("CmdAppendLog(%q)", c.Message) }

// CmdEmitDiagnostic sends the analytics report to the diagnostic channel.
type CmdEmitDiagnostic struct {
	Report AnalyticsReport
}

func (CmdEmitDiagnostic) commandMarker() {}
func (c CmdEmitDiagnostic) String() string {
	return fmt.Sprintf("CmdEmitDiagnostic(samples=%d)", c.Report.TrackSamples)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Broadcasts (host-facing state changes)
// ==============================

// StateBroadcast is a reducer-emitted change destined for websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastProgressChanged carries the displayed progress, rounded for display.
type BroadcastProgressChanged struct {
	Displayed float64
	Completed bool
	At        time.Time
}

func (BroadcastProgressChanged) broadcastMarker() {}

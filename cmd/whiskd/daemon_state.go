package main

import (
	"math"
	"time"
)

// SimulationState is the top-level, daemon-owned state container.
//
// Every stage of the tick pipeline reads and writes through this struct; the
// reducer is its only mutator and nothing outside the daemon goroutine may
// hold a reference to it.
type SimulationState struct {
	Progress  ProgressState
	Deception DeceptionState
	Sessions  SessionState

	Pointer PointerState
	Body    BodyState

	Metrics *Aggregator
	Track   *TrackLog

	Physics PhysicsState

	// Last displayed value handed to the broadcaster.
	BroadcastDisplayed float64
	BroadcastKnown     bool

	Ticks uint64
}

// PointerState holds the latest pointer position and the sampler's previous sample.
type PointerState struct {
	X, Y  float64
	Known bool

	Prev      *Sample
	LastSpeed float64
}

// BodyState is the last physics observation of the dragged body.
type BodyState struct {
	X, Y            float64
	AngularVelocity float64
	Known           bool
}

// PhysicsState separates what the reducer asked for from what the host accepted.
type PhysicsState struct {
	Requested      PhysicsOutput
	RequestedKnown bool

	Applied   PhysicsOutput
	AppliedAt time.Time

	Failures int
}

// StateSnapshot is a copy of the state suitable for other goroutines.
type StateSnapshot struct {
	TrueProgress      float64
	DisplayedProgress float64
	Phase             Phase
	Dragging          bool
	Physics           PhysicsOutput
	Freezes           int
	CompletedDrags    int
	TrackSamples      int
	Ticks             uint64
}

// NewSimulationState returns the initial state: NORMAL, zero progress, no history.
func NewSimulationState(cfg EngineConfig) *SimulationState {
	return &SimulationState{
		Deception: newDeceptionState(),
		Metrics:   newAggregator(cfg.Analytics),
		Track:     newTrackLog(),
	}
}

// Snapshot copies the externally visible fields.
func (s *SimulationState) Snapshot() StateSnapshot {
	return StateSnapshot{
		TrueProgress:      s.Progress.True,
		DisplayedProgress: s.Progress.Displayed,
		Phase:             s.Deception.Phase(),
		Dragging:          s.Progress.IsDragging,
		Physics:           s.Physics.Requested,
		Freezes:           s.Deception.Freezes,
		CompletedDrags:    s.Sessions.Completed,
		TrackSamples:      s.Track.Len(),
		Ticks:             s.Ticks,
	}
}

// deviation returns how far the body sits from its orbit radius.
func (b BodyState) deviation(g GeometryConfig) float64 {
	if !b.Known || g.OrbitRadius <= 0 {
		return 0
	}
	return math.Abs(math.Hypot(b.X-g.PivotX, b.Y-g.PivotY) - g.OrbitRadius)
}

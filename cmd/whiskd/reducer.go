package main

import (
	"fmt"
	"math"
	"time"
)

// This file implements the reducer:
//
//   - Events: inputs (pointer/body feeds, drag edges, manual triggers, ticks, effect observations)
//   - Commands: side effects requested by the reducer (physics writes, journal lines, diagnostics)
//   - Broadcasts: host-facing state changes fanned out to websocket clients
//
// The reducer must be pure apart from the injected random source: it performs
// no I/O, never blocks, and mutates nothing outside the state it returns.

// ReduceResult is the output of Reduce(): next state plus Commands and Broadcasts.
type ReduceResult struct {
	State      *SimulationState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer.
//
// A Tick runs the pipeline in fixed order:
// sampler -> accumulator -> gain mapper -> deception controller -> aggregator -> track log.
func Reduce(s *SimulationState, e Event, cfg EngineConfig, rng RandomSource) ReduceResult {
	if s == nil {
		s = NewSimulationState(cfg)
	}

	var rr ReduceResult

	switch ev := e.(type) {
	case Tick:
		rr.Commands, rr.Broadcasts = reduceTick(s, ev.Now, cfg, rng)

	case TimedEvent:
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		rr.Commands = reduceInput(s, ev.Event, at, cfg)

	case PointerMoved, BodyObserved, DragStarted, DragEnded, MarkNoticed, DumpAnalytics:
		rr.Commands = reduceInput(s, ev, time.Now(), cfg)

	case RequestStateSnapshot:
		rr.Commands = append(rr.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(),
		})

	case PhysicsApplied:
		s.Physics.Applied = ev.Output
		s.Physics.AppliedAt = ev.At

	case EffectFailed:
		if _, ok := ev.Command.(CmdApplyPhysics); ok {
			// Forget the request so the next tick writes again.
			s.Physics.Failures++
			s.Physics.RequestedKnown = false
		}

	default:
		// Unknown event type: no-op.
	}

	rr.State = s
	return rr
}

func reduceTick(s *SimulationState, now time.Time, cfg EngineConfig, rng RandomSource) ([]Command, []StateBroadcast) {
	var cmds []Command
	logf := func(format string, args ...any) {
		cmds = append(cmds, CmdAppendLog{Message: fmt.Sprintf(format, args...), At: now})
	}

	s.Ticks++
	p := &s.Progress
	maxProgress := cfg.Progress.MaxProgress
	wasComplete := p.True >= maxProgress

	// Sampler
	speed := 0.0
	if p.IsDragging && s.Pointer.Known {
		cur := Sample{At: now, X: s.Pointer.X, Y: s.Pointer.Y}
		speed = PointerSpeed(s.Pointer.Prev, cur)
		s.Pointer.Prev = &cur
	}
	s.Pointer.LastSpeed = speed

	// Accumulator
	if p.IsDragging {
		if s.Body.Known {
			p.Accumulate(bodyAngle(s.Body.X, s.Body.Y, cfg.Geometry.PivotX, cfg.Geometry.PivotY), cfg.Progress)
		}
	} else {
		p.Decay(cfg.Progress)
	}

	// Gain mapper
	out := MapGain(p.True, maxProgress, cfg.Gain)
	if !s.Physics.RequestedKnown || physicsChanged(s.Physics.Requested, out, cfg.Gain.UpdateThreshold) {
		s.Physics.Requested = out
		s.Physics.RequestedKnown = true
		cmds = append(cmds, CmdApplyPhysics{Output: out})
	}

	// Deception controller
	step := s.Deception.Step(p, now, maxProgress, cfg.Deception, s.Track.Rate, rng)
	truePct := p.Percent(maxProgress)
	offset := truePct - p.Displayed

	if step.Exited {
		logf("Progress unfrozen after %d ms. whiskingProgress: %.2f%%, displayedProgress: %.2f%%",
			step.Elapsed.Milliseconds(), truePct, p.Displayed)
	}
	if fe := step.Entered; fe != nil {
		source := "estimated"
		if fe.Fallback {
			source = "fallback"
		}
		logf("Progress frozen at whiskingProgress: %.2f%%, displayedProgress: %.2f%% for %d ms (%s, band %d%%, target %.2f progress, offset %.2f%%)",
			truePct, p.Displayed, fe.Duration.Milliseconds(), source, fe.Band, fe.Target, offset)
	}
	if !wasComplete && p.True >= maxProgress {
		logf("Task completed: whiskingProgress: %.2f%%, displayedProgress: %.2f%%", truePct, p.Displayed)
	}

	// Aggregator
	if p.IsDragging {
		m := TickMetrics{
			Speed:           speed,
			AngularVelocity: s.Body.AngularVelocity,
			Deviation:       s.Body.deviation(cfg.Geometry),
			Displayed:       p.Displayed,
			Offset:          offset,
		}
		for _, sum := range s.Metrics.Observe(truePct, p.Displayed, m) {
			logf("%s", sum.String())
		}
	}
	if !wasComplete && p.True >= maxProgress {
		for _, sum := range s.Metrics.Finalize() {
			logf("%s", sum.String())
		}
	}
	if s.Metrics.ProgressUpdateDue(truePct) {
		logf("Progress update: whiskingProgress: %.2f%%, displayedProgress: %.2f%%, offset: %.2f%%",
			truePct, p.Displayed, offset)
	}

	// Track log
	if p.IsDragging {
		s.Track.Append(TrackEntry{
			At:                now,
			TrueProgress:      p.True,
			Speed:             speed,
			DisplayedProgress: p.Displayed,
			Offset:            offset,
		})
	}

	var bcs []StateBroadcast
	rounded := math.Round(p.Displayed/progressBroadcastPrecision) * progressBroadcastPrecision
	if !s.BroadcastKnown || rounded != s.BroadcastDisplayed {
		s.BroadcastDisplayed = rounded
		s.BroadcastKnown = true
		bcs = append(bcs, BroadcastProgressChanged{
			Displayed: rounded,
			Completed: p.True >= maxProgress,
			At:        now,
		})
	}

	return cmds, bcs
}

func reduceInput(s *SimulationState, e Event, at time.Time, cfg EngineConfig) []Command {
	var cmds []Command
	logf := func(format string, args ...any) {
		cmds = append(cmds, CmdAppendLog{Message: fmt.Sprintf(format, args...), At: at})
	}

	p := &s.Progress
	maxProgress := cfg.Progress.MaxProgress

	switch ev := e.(type) {
	case PointerMoved:
		s.Pointer.X, s.Pointer.Y = ev.X, ev.Y
		s.Pointer.Known = true

	case BodyObserved:
		s.Body = BodyState{X: ev.X, Y: ev.Y, AngularVelocity: ev.AngularVelocity, Known: true}

	case DragStarted:
		if p.IsDragging {
			return nil
		}
		p.IsDragging = true
		p.ResetAngle()
		s.Pointer.Prev = nil
		if pause, ok := s.Sessions.Start(at); ok {
			logf("Pause duration: %.2f s before drag at whiskingProgress: %.2f%%, displayedProgress: %.2f%%",
				pause.Seconds(), p.Percent(maxProgress), p.Displayed)
		}

	case DragEnded:
		p.IsDragging = false
		p.ResetAngle()
		s.Pointer.Prev = nil
		dur, ok := s.Sessions.End(at)
		if !ok {
			return nil
		}
		truePct := p.Percent(maxProgress)
		s.Metrics.AddDrag(truePct, p.Displayed, dur)
		logf("Drag duration: %.2f s at whiskingProgress: %.2f%%, displayedProgress: %.2f%%",
			dur.Seconds(), truePct, p.Displayed)

	case MarkNoticed:
		phys := s.Physics.Requested
		logf("User noticed change at whiskingProgress: %.2f (%.2f%%), displayedProgress: %.2f%%, resistance: %.3f, responsiveness: %.4f",
			p.True, p.Percent(maxProgress), p.Displayed, phys.Resistance, phys.Responsiveness)

	case DumpAnalytics:
		cmds = append(cmds, CmdEmitDiagnostic{Report: BuildAnalyticsReport(s, maxProgress, at)})

	default:
		// Not an input event.
	}

	return cmds
}

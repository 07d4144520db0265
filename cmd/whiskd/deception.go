package main

import (
	"math"
	"time"
)

// DeceptionConfig schedules freeze windows over displayed progress.
type DeceptionConfig struct {
	Enabled bool

	BandPercent       int           // width of a freeze band in percent
	Cooldown          time.Duration // minimum time since the last unfreeze
	FreezeProbability float64       // coin-flip success probability after the first band
	ForceFirstBand    bool          // band 0 always freezes

	TargetMinFraction float64 // hidden progress, as a fraction of maxProgress
	TargetMaxFraction float64

	MinFreeze time.Duration
	MaxFreeze time.Duration

	FallbackMin time.Duration // used when no positive velocity is known
	FallbackMax time.Duration

	VelocityWindow time.Duration
}

// Phase is the deception controller state.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseFrozen
)

func (p Phase) String() string {
	switch p {
	case PhaseNormal:
		return "normal"
	case PhaseFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// FreezeWindow holds the active freeze and the anchors of the last transition.
//
// The anchors outlive the window: in NORMAL they are the baseline that
// displayed progress tracks from.
type FreezeWindow struct {
	Active    bool
	StartedAt time.Time
	Duration  time.Duration

	AnchorDisplayed float64
	AnchorTrue      float64
}

// DeceptionState is the controller's reducer-owned bookkeeping.
type DeceptionState struct {
	Window FreezeWindow

	// CheckedBands records bands whose freeze roll has been spent.
	CheckedBands map[int]bool

	// LastUnfrozenAt is zero until the first freeze ends.
	LastUnfrozenAt time.Time

	Freezes int
}

func newDeceptionState() DeceptionState {
	return DeceptionState{CheckedBands: make(map[int]bool)}
}

func (d *DeceptionState) Phase() Phase {
	if d.Window.Active {
		return PhaseFrozen
	}
	return PhaseNormal
}

// FreezeEntry describes a NORMAL -> FROZEN transition.
type FreezeEntry struct {
	Band          int
	Target        float64 // progress units hidden by the freeze
	Velocity      float64 // units/s, valid when VelocityKnown
	VelocityKnown bool
	Duration      time.Duration
	Fallback      bool
}

// DeceptionStep reports the transitions taken during one controller step.
type DeceptionStep struct {
	Entered *FreezeEntry
	Exited  bool
	Elapsed time.Duration // freeze length, set when Exited
}

// rateFunc estimates true-progress velocity; ok is false when undefined.
type rateFunc func(now time.Time, window time.Duration) (rate float64, ok bool)

// Step advances the controller by one tick and writes p.Displayed.
//
// Expiry is evaluated on every tick. Entry is evaluated only while dragging.
func (d *DeceptionState) Step(p *ProgressState, now time.Time, maxProgress float64, cfg DeceptionConfig, rate rateFunc, rng RandomSource) DeceptionStep {
	var step DeceptionStep

	if d.Window.Active {
		elapsed := now.Sub(d.Window.StartedAt)
		if elapsed >= d.Window.Duration {
			d.Window.Active = false
			d.Window.AnchorTrue = p.True
			d.LastUnfrozenAt = now
			step.Exited = true
			step.Elapsed = elapsed
		}
	}

	if cfg.Enabled && p.IsDragging && !d.Window.Active {
		step.Entered = d.maybeFreeze(p, now, maxProgress, cfg, rate, rng)
	}

	if p.True >= maxProgress {
		d.Window.AnchorDisplayed = 100
		d.Window.AnchorTrue = maxProgress
		p.Displayed = 100
		return step
	}

	if d.Window.Active {
		p.Displayed = d.Window.AnchorDisplayed
		return step
	}

	p.Displayed = clamp(d.Window.AnchorDisplayed+(p.True-d.Window.AnchorTrue)*(100/maxProgress), 0, 100)
	return step
}

func (d *DeceptionState) maybeFreeze(p *ProgressState, now time.Time, maxProgress float64, cfg DeceptionConfig, rate rateFunc, rng RandomSource) *FreezeEntry {
	if cfg.BandPercent <= 0 || maxProgress <= 0 {
		return nil
	}

	pct := p.True / maxProgress * 100
	band := int(math.Floor(pct/float64(cfg.BandPercent))) * cfg.BandPercent
	if band >= 100 || d.CheckedBands[band] {
		return nil
	}
	if !d.LastUnfrozenAt.IsZero() && now.Sub(d.LastUnfrozenAt) < cfg.Cooldown {
		return nil
	}

	d.CheckedBands[band] = true
	forced := band == 0 && cfg.ForceFirstBand
	if !forced && rng.Float64() >= cfg.FreezeProbability {
		return nil
	}

	entry := &FreezeEntry{
		Band:   band,
		Target: maxProgress * uniform(rng, cfg.TargetMinFraction, cfg.TargetMaxFraction),
	}
	if rate != nil {
		entry.Velocity, entry.VelocityKnown = rate(now, cfg.VelocityWindow)
	}
	entry.Duration, entry.Fallback = freezeDuration(entry.Target, entry.Velocity, entry.VelocityKnown, cfg, rng)

	d.Window = FreezeWindow{
		Active:          true,
		StartedAt:       now,
		Duration:        entry.Duration,
		AnchorDisplayed: p.Displayed,
		AnchorTrue:      p.True,
	}
	d.Freezes++
	return entry
}

// freezeDuration sizes a freeze so that it hides roughly target units at the
// current velocity. Without a positive velocity it draws from the fallback range.
func freezeDuration(target, velocity float64, known bool, cfg DeceptionConfig, rng RandomSource) (time.Duration, bool) {
	if known && velocity > 0 {
		ms := target / velocity * 1000
		ms = clamp(ms, float64(cfg.MinFreeze.Milliseconds()), float64(cfg.MaxFreeze.Milliseconds()))
		return time.Duration(ms * float64(time.Millisecond)), false
	}
	lo := float64(cfg.FallbackMin)
	hi := float64(cfg.FallbackMax)
	return time.Duration(uniform(rng, lo, hi)), true
}

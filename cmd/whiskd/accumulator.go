package main

import "math"

// ProgressConfig controls how rotation becomes true progress.
type ProgressConfig struct {
	MaxProgress  float64
	Sensitivity  float64 // progress units per radian
	DecayPerTick float64 // progress units removed per tick while released
}

// ProgressState holds the two progress values and the accumulator's angle memory.
//
// True is written only by the accumulator; Displayed only by the deception controller.
type ProgressState struct {
	True      float64
	Displayed float64

	LastAngle float64
	HasAngle  bool

	IsDragging bool
}

// wrapAngle maps a raw angle difference into (-π, π].
// A difference of exactly π stays positive; exactly -π maps to +π.
func wrapAngle(diff float64) float64 {
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	for diff <= -math.Pi {
		diff += 2 * math.Pi
	}
	return diff
}

// bodyAngle returns the angle of (x, y) around the pivot in radians.
func bodyAngle(x, y, pivotX, pivotY float64) float64 {
	return math.Atan2(y-pivotY, x-pivotX)
}

// Accumulate folds a new angle reading into true progress.
// The first reading after a reset only seeds the angle memory.
// It returns the wrapped angular delta applied (0 when there was no previous angle).
func (p *ProgressState) Accumulate(angle float64, cfg ProgressConfig) float64 {
	if !p.HasAngle {
		p.LastAngle = angle
		p.HasAngle = true
		return 0
	}
	diff := wrapAngle(angle - p.LastAngle)
	p.LastAngle = angle
	p.True = clamp(p.True+math.Abs(diff)*cfg.Sensitivity, 0, cfg.MaxProgress)
	return diff
}

// Decay removes one tick's worth of progress while the body is released.
func (p *ProgressState) Decay(cfg ProgressConfig) {
	p.True = clamp(p.True-cfg.DecayPerTick, 0, cfg.MaxProgress)
}

// ResetAngle forgets the previous angle so the next reading produces no delta.
func (p *ProgressState) ResetAngle() {
	p.LastAngle = 0
	p.HasAngle = false
}

// Percent returns true progress as a percentage of maxProgress.
func (p *ProgressState) Percent(maxProgress float64) float64 {
	if maxProgress <= 0 {
		return 0
	}
	return p.True / maxProgress * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package main

import (
	"fmt"
	"math"
)

// GainConfig bounds the physics parameters handed to the host simulation.
type GainConfig struct {
	ResistanceMin         float64
	ResistanceMax         float64
	ResponsivenessInitial float64
	ResponsivenessFinal   float64

	// UpdateThreshold is the smallest change that warrants a new physics write.
	UpdateThreshold float64
}

// PhysicsOutput is the complete interface to the host physics layer.
type PhysicsOutput struct {
	Resistance          float64 `json:"resistance"`
	Responsiveness      float64 `json:"responsiveness"`
	ZeroAngularVelocity bool    `json:"zero_angular_velocity"`
	Locked              bool    `json:"locked"`
}

func (o PhysicsOutput) String() string {
	return fmt.Sprintf("resistance=%.3f responsiveness=%.4f locked=%v", o.Resistance, o.Responsiveness, o.Locked)
}

// MapGain converts true progress into resistance and responsiveness.
//
// At completion resistance is pinned to its maximum and the host is told to
// zero the body's angular velocity.
func MapGain(trueProgress, maxProgress float64, cfg GainConfig) PhysicsOutput {
	ratio := 0.0
	if maxProgress > 0 {
		ratio = clamp(trueProgress/maxProgress, 0, 1)
	}

	out := PhysicsOutput{
		Resistance:     cfg.ResistanceMin + (cfg.ResistanceMax-cfg.ResistanceMin)*ratio,
		Responsiveness: cfg.ResponsivenessInitial - (cfg.ResponsivenessInitial-cfg.ResponsivenessFinal)*ratio,
	}
	if ratio >= 1 {
		out.Resistance = cfg.ResistanceMax
		out.Responsiveness = cfg.ResponsivenessFinal
		out.ZeroAngularVelocity = true
		out.Locked = true
	}
	return out
}

// physicsChanged reports whether next differs enough from prev to be sent.
func physicsChanged(prev, next PhysicsOutput, threshold float64) bool {
	if prev.Locked != next.Locked {
		return true
	}
	if math.Abs(prev.Resistance-next.Resistance) > threshold {
		return true
	}
	return math.Abs(prev.Responsiveness-next.Responsiveness) > threshold
}

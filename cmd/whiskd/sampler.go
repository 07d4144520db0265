package main

import (
	"math"
	"time"
)

// Sample is one pointer position observed at a monotonic clock reading.
type Sample struct {
	At time.Time
	X  float64
	Y  float64
}

// PointerSpeed returns the linear pointer speed in px/s between prev and cur.
//
// It returns 0 when there is no previous sample or when the elapsed time is
// zero or negative, so the first frame of a drag never produces a spike.
func PointerSpeed(prev *Sample, cur Sample) float64 {
	if prev == nil {
		return 0
	}
	dt := cur.At.Sub(prev.At).Seconds()
	if dt <= 0 {
		return 0
	}
	dist := math.Hypot(cur.X-prev.X, cur.Y-prev.Y)
	return dist / math.Max(dt, speedEpsilonSec)
}

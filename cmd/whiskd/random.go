package main

import (
	"math/rand/v2"
	"time"
)

// RandomSource supplies the uniform draws in [0, 1) used by freeze scheduling.
type RandomSource interface {
	Float64() float64
}

// newRandomSource returns a PCG-backed source. A zero seed draws one from the clock.
func newRandomSource(seed uint64) (RandomSource, uint64) {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}

// uniform returns a draw in [lo, hi).
func uniform(rng RandomSource, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

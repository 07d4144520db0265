package main

import (
	"testing"
	"time"
)

func TestPointerSpeed(t *testing.T) {
	t0 := testEpoch

	tests := []struct {
		name string
		prev *Sample
		cur  Sample
		want float64
	}{
		{
			name: "no previous sample",
			prev: nil,
			cur:  Sample{At: t0, X: 10, Y: 10},
			want: 0,
		},
		{
			name: "3-4-5 over half a second",
			prev: &Sample{At: t0, X: 0, Y: 0},
			cur:  Sample{At: t0.Add(500 * time.Millisecond), X: 3, Y: 4},
			want: 10,
		},
		{
			name: "zero dt",
			prev: &Sample{At: t0, X: 0, Y: 0},
			cur:  Sample{At: t0, X: 300, Y: 400},
			want: 0,
		},
		{
			name: "clock went backwards",
			prev: &Sample{At: t0.Add(time.Second), X: 0, Y: 0},
			cur:  Sample{At: t0, X: 30, Y: 40},
			want: 0,
		},
		{
			name: "stationary pointer",
			prev: &Sample{At: t0, X: 5, Y: 5},
			cur:  Sample{At: t0.Add(16 * time.Millisecond), X: 5, Y: 5},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointerSpeed(tt.prev, tt.cur)
			if got != tt.want {
				t.Fatalf("PointerSpeed() = %v, want %v", got, tt.want)
			}
		})
	}
}

package main

import (
	"math"
	"strings"
	"testing"
	"time"
)

// scriptedRandom replays fixed draws and fails the test when it runs dry.
type scriptedRandom struct {
	t    *testing.T
	vals []float64
	n    int
}

func newScriptedRandom(t *testing.T, vals ...float64) *scriptedRandom {
	return &scriptedRandom{t: t, vals: vals}
}

func (r *scriptedRandom) Float64() float64 {
	if r.n >= len(r.vals) {
		r.t.Fatalf("unexpected random draw #%d", r.n+1)
		return 0
	}
	v := r.vals[r.n]
	r.n++
	return v
}

// testEngine returns the default engine config with deception switched as asked.
func testEngine(deception bool) EngineConfig {
	cfg := DefaultConfig()
	cfg.Deception.Enabled = deception
	return cfg.ToEngineConfig()
}

// bodyAt returns host coordinates on the orbit at angle a.
func bodyAt(g GeometryConfig, a float64) BodyObserved {
	return BodyObserved{
		X: g.PivotX + g.OrbitRadius*math.Cos(a),
		Y: g.PivotY + g.OrbitRadius*math.Sin(a),
	}
}

func logMessages(cmds []Command) []string {
	var out []string
	for _, c := range cmds {
		if l, ok := c.(CmdAppendLog); ok {
			out = append(out, l.Message)
		}
	}
	return out
}

func logsWithPrefix(cmds []Command, prefix string) []string {
	var out []string
	for _, m := range logMessages(cmds) {
		if strings.HasPrefix(m, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func physicsCommands(cmds []Command) []CmdApplyPhysics {
	var out []CmdApplyPhysics
	for _, c := range cmds {
		if p, ok := c.(CmdApplyPhysics); ok {
			out = append(out, p)
		}
	}
	return out
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return testEpoch.Add(time.Duration(ms) * time.Millisecond) }

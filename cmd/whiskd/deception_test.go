package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDeception() DeceptionConfig {
	return testEngine(true).Deception
}

func fixedRate(v float64, ok bool) rateFunc {
	return func(time.Time, time.Duration) (float64, bool) { return v, ok }
}

func TestFreezeDuration_FromVelocity(t *testing.T) {
	cfg := defaultDeception()

	// 15 units at 5 units/s hides for 3 s.
	d, fallback := freezeDuration(15, 5, true, cfg, nil)
	assert.False(t, fallback)
	assert.Equal(t, 3000*time.Millisecond, d)

	d, _ = freezeDuration(15, 100, true, cfg, nil)
	assert.Equal(t, cfg.MinFreeze, d, "short freezes clamp to the minimum")

	d, _ = freezeDuration(15, 0.1, true, cfg, nil)
	assert.Equal(t, cfg.MaxFreeze, d, "long freezes clamp to the maximum")
}

func TestFreezeDuration_Fallback(t *testing.T) {
	cfg := defaultDeception()

	for _, tc := range []struct {
		name     string
		velocity float64
		known    bool
	}{
		{"unknown velocity", 0, false},
		{"stalled", 0, true},
		{"negative", -3, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, draw := range []float64{0, 0.5, 0.999} {
				d, fallback := freezeDuration(15, tc.velocity, tc.known, cfg, newScriptedRandom(t, draw))
				require.True(t, fallback)
				assert.GreaterOrEqual(t, d, cfg.FallbackMin)
				assert.Less(t, d, cfg.FallbackMax)
			}
		})
	}
}

func TestStep_FirstBandFreezesForEstimatedDuration(t *testing.T) {
	cfg := defaultDeception()
	d := newDeceptionState()
	p := &ProgressState{IsDragging: true, True: 2, Displayed: 2}

	// Band 0 is forced, so the only draw is the target: 0.10 + r*0.15 = 0.15.
	step := d.Step(p, at(0), 100, cfg, fixedRate(5, true), newScriptedRandom(t, 1.0/3))

	require.NotNil(t, step.Entered)
	assert.Equal(t, 0, step.Entered.Band)
	assert.InDelta(t, 15, step.Entered.Target, 1e-9)
	assert.InDelta(t, 3000, float64(step.Entered.Duration.Milliseconds()), 1)
	assert.False(t, step.Entered.Fallback)
	assert.Equal(t, PhaseFrozen, d.Phase())
	assert.Equal(t, 1, d.Freezes)
}

func TestStep_DisplayedHeldWhileFrozenThenResumesWithoutJump(t *testing.T) {
	cfg := defaultDeception()
	d := newDeceptionState()
	p := &ProgressState{IsDragging: true, True: 3, Displayed: 3}

	step := d.Step(p, at(0), 100, cfg, fixedRate(5, true), newScriptedRandom(t, 1.0/3))
	require.NotNil(t, step.Entered)
	dur := step.Entered.Duration

	// True progress keeps moving while the display is held.
	for ms := 100; ms < int(dur.Milliseconds()); ms += 100 {
		p.True += 0.5
		d.Step(p, at(ms), 100, cfg, fixedRate(5, true), nil)
		require.Equal(t, 3.0, p.Displayed, "displayed moved while frozen at %dms", ms)
	}

	// Expiry: display stays at the anchor on the transition tick.
	hidden := p.True
	step = d.Step(p, at(int(dur.Milliseconds())), 100, cfg, fixedRate(5, true), nil)
	require.True(t, step.Exited)
	assert.Equal(t, 3.0, p.Displayed)
	assert.Equal(t, PhaseNormal, d.Phase())

	// Afterwards it tracks deltas from the new anchors, keeping the hidden offset.
	p.True = hidden + 1
	d.Step(p, at(int(dur.Milliseconds())+100), 100, cfg, fixedRate(5, true), nil)
	assert.InDelta(t, 4.0, p.Displayed, 1e-9)
}

func TestStep_BandCheckedOnce(t *testing.T) {
	cfg := defaultDeception()
	d := newDeceptionState()
	p := &ProgressState{IsDragging: true, True: 12, Displayed: 12}

	// Coin flip fails (>= probability): no freeze, band spent.
	step := d.Step(p, at(0), 100, cfg, fixedRate(5, true), newScriptedRandom(t, 0.9))
	require.Nil(t, step.Entered)
	assert.True(t, d.CheckedBands[10])

	// Staying in the band draws nothing more; scriptedRandom would fail the test.
	for ms := 16; ms < 500; ms += 16 {
		p.True += 0.05
		step = d.Step(p, at(ms), 100, cfg, fixedRate(5, true), newScriptedRandom(t))
		require.Nil(t, step.Entered)
	}
}

func TestStep_CooldownDefersBandCheck(t *testing.T) {
	cfg := defaultDeception()
	d := newDeceptionState()
	d.LastUnfrozenAt = at(0)
	p := &ProgressState{IsDragging: true, True: 21, Displayed: 21}

	step := d.Step(p, at(1999), 100, cfg, fixedRate(5, true), newScriptedRandom(t))
	require.Nil(t, step.Entered)
	assert.False(t, d.CheckedBands[20], "band must stay eligible during cooldown")

	// Cooldown over: the roll happens and succeeds (< probability).
	step = d.Step(p, at(2000), 100, cfg, fixedRate(5, true), newScriptedRandom(t, 0.1, 0.5))
	require.NotNil(t, step.Entered)
	assert.Equal(t, 20, step.Entered.Band)
}

func TestStep_NoEntryWhenReleasedOrDisabled(t *testing.T) {
	cfg := defaultDeception()

	d := newDeceptionState()
	p := &ProgressState{IsDragging: false, True: 5}
	assert.Nil(t, d.Step(p, at(0), 100, cfg, fixedRate(5, true), newScriptedRandom(t)).Entered)
	assert.Empty(t, d.CheckedBands)

	cfg.Enabled = false
	p.IsDragging = true
	assert.Nil(t, d.Step(p, at(0), 100, cfg, fixedRate(5, true), newScriptedRandom(t)).Entered)
	assert.InDelta(t, 5, p.Displayed, 1e-9)
}

func TestStep_ExpiresWhileReleased(t *testing.T) {
	cfg := defaultDeception()
	d := newDeceptionState()
	d.Window = FreezeWindow{Active: true, StartedAt: at(0), Duration: time.Second, AnchorDisplayed: 10, AnchorTrue: 10}
	p := &ProgressState{IsDragging: false, True: 14, Displayed: 10}

	step := d.Step(p, at(1000), 100, cfg, nil, newScriptedRandom(t))
	assert.True(t, step.Exited)
	assert.Equal(t, at(1000), d.LastUnfrozenAt)
	assert.Equal(t, 10.0, p.Displayed)
}

func TestStep_CompletionSnapsTo100EvenWhenFrozen(t *testing.T) {
	cfg := defaultDeception()
	d := newDeceptionState()
	d.Window = FreezeWindow{Active: true, StartedAt: at(0), Duration: 10 * time.Second, AnchorDisplayed: 80, AnchorTrue: 85}
	d.CheckedBands[90] = true
	p := &ProgressState{IsDragging: true, True: 100, Displayed: 80}

	d.Step(p, at(500), 100, cfg, nil, newScriptedRandom(t))
	assert.Equal(t, 100.0, p.Displayed)
}

func TestStep_DisplayedStaysInRange(t *testing.T) {
	cfg := defaultDeception()
	cfg.Enabled = false
	d := newDeceptionState()
	d.Window.AnchorDisplayed = 90
	d.Window.AnchorTrue = 10

	p := &ProgressState{True: 60}
	d.Step(p, at(0), 100, cfg, nil, nil)
	assert.Equal(t, 100.0, p.Displayed)

	d.Window.AnchorDisplayed = 5
	d.Window.AnchorTrue = 50
	p.True = 0
	d.Step(p, at(0), 100, cfg, nil, nil)
	assert.Equal(t, 0.0, p.Displayed)
}

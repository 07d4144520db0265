package main

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// AnalyticsConfig selects the bucket dimensions aggregated per tick.
type AnalyticsConfig struct {
	Granularity int // buckets across true progress

	DisplayedDimension   bool
	DisplayedGranularity int // buckets across displayed progress
}

// Dimension names
const (
	dimensionTrue      = "true"
	dimensionDisplayed = "displayed"
)

// TickMetrics are the per-tick values folded into a bucket.
type TickMetrics struct {
	Speed           float64 // pointer px/s
	AngularVelocity float64 // body rad/tick as reported by the host
	Deviation       float64 // px away from the orbit radius
	Displayed       float64 // displayed percent
	Offset          float64 // true percent minus displayed percent
}

// Bucket accumulates metric sums for one percentile range. Created lazily, never removed.
type Bucket struct {
	ID int

	SpeedSum           float64
	AngularVelocitySum float64
	DeviationSum       float64
	DisplayedSum       float64
	OffsetSum          float64
	Samples            int

	DragDurationSum time.Duration
	Drags           int
}

func (b *Bucket) add(m TickMetrics) {
	b.SpeedSum += m.Speed
	b.AngularVelocitySum += math.Abs(m.AngularVelocity)
	b.DeviationSum += m.Deviation
	b.DisplayedSum += m.Displayed
	b.OffsetSum += m.Offset
	b.Samples++
}

func (b *Bucket) populated() bool { return b.Samples > 0 || b.Drags > 0 }

// BucketSummary is the averaged view of a bucket.
type BucketSummary struct {
	Dimension string `json:"dimension"`
	ID        int    `json:"id"`

	LowerPercent float64 `json:"lower_percent"`
	UpperPercent float64 `json:"upper_percent"`

	AvgSpeed           float64 `json:"avg_speed"`
	AvgAngularVelocity float64 `json:"avg_angular_velocity"`
	AvgDeviation       float64 `json:"avg_deviation"`
	AvgDisplayed       float64 `json:"avg_displayed"`
	AvgOffset          float64 `json:"avg_offset"`
	Samples            int     `json:"samples"`

	AvgDragSeconds float64 `json:"avg_drag_seconds"`
	Drags          int     `json:"drags"`
}

// String renders the summary as a single journal line.
func (s BucketSummary) String() string {
	return fmt.Sprintf(
		"Bucket [%s] %d (%.0f-%.0f%%): Speed: %.2f px/s, Angular Velocity: %.4f rad/s, Deviation: %.2f px, displayedProgress: %.2f%%, offset: %.2f%%, samples: %d, drags: %d (avg %.2f s)",
		s.Dimension, s.ID, s.LowerPercent, s.UpperPercent,
		s.AvgSpeed, s.AvgAngularVelocity, s.AvgDeviation, s.AvgDisplayed, s.AvgOffset, s.Samples,
		s.Drags, s.AvgDragSeconds,
	)
}

// Dimension is one independent bucketing of progress with its own watermark.
type Dimension struct {
	Name        string
	Granularity int
	Buckets     map[int]*Bucket

	// LastLogged is the highest bucket id already finalized, -1 before the first.
	LastLogged int
}

func newDimension(name string, granularity int) *Dimension {
	if granularity <= 0 {
		granularity = defaultGranularity
	}
	return &Dimension{
		Name:        name,
		Granularity: granularity,
		Buckets:     make(map[int]*Bucket),
		LastLogged:  -1,
	}
}

// BucketID maps a percentage onto [0, Granularity-1].
func (d *Dimension) BucketID(pct float64) int {
	id := int(math.Floor(pct * float64(d.Granularity) / 100))
	if id < 0 {
		return 0
	}
	if id >= d.Granularity {
		return d.Granularity - 1
	}
	return id
}

func (d *Dimension) bucket(id int) *Bucket {
	b, ok := d.Buckets[id]
	if !ok {
		b = &Bucket{ID: id}
		d.Buckets[id] = b
	}
	return b
}

// Observe folds metrics into the bucket for pct and returns summaries for
// every populated bucket finalized by this observation, in ascending order.
func (d *Dimension) Observe(pct float64, m TickMetrics) []BucketSummary {
	id := d.BucketID(pct)
	d.bucket(id).add(m)

	prev := id - 1
	if prev <= d.LastLogged {
		return nil
	}

	var out []BucketSummary
	for b := d.LastLogged + 1; b <= prev; b++ {
		if bk, ok := d.Buckets[b]; ok && bk.populated() {
			out = append(out, d.summarize(bk))
		}
	}
	d.LastLogged = prev
	return out
}

// Finalize emits every populated bucket above the watermark, including the
// last one, which Observe can never pass. Used once progress reaches 100%.
func (d *Dimension) Finalize() []BucketSummary {
	var out []BucketSummary
	for b := d.LastLogged + 1; b < d.Granularity; b++ {
		if bk, ok := d.Buckets[b]; ok && bk.populated() {
			out = append(out, d.summarize(bk))
		}
	}
	d.LastLogged = d.Granularity - 1
	return out
}

// AddDrag records a completed drag session against the bucket for pct.
func (d *Dimension) AddDrag(pct float64, dur time.Duration) {
	b := d.bucket(d.BucketID(pct))
	b.DragDurationSum += dur
	b.Drags++
}

func (d *Dimension) summarize(b *Bucket) BucketSummary {
	width := 100 / float64(d.Granularity)
	s := BucketSummary{
		Dimension:    d.Name,
		ID:           b.ID,
		LowerPercent: float64(b.ID) * width,
		UpperPercent: float64(b.ID+1) * width,
		Samples:      b.Samples,
		Drags:        b.Drags,
	}
	if b.Samples > 0 {
		n := float64(b.Samples)
		s.AvgSpeed = b.SpeedSum / n
		s.AvgAngularVelocity = b.AngularVelocitySum / n
		s.AvgDeviation = b.DeviationSum / n
		s.AvgDisplayed = b.DisplayedSum / n
		s.AvgOffset = b.OffsetSum / n
	}
	if b.Drags > 0 {
		s.AvgDragSeconds = b.DragDurationSum.Seconds() / float64(b.Drags)
	}
	return s
}

// Summaries returns every populated bucket, finalized or not, in ascending order.
func (d *Dimension) Summaries() []BucketSummary {
	ids := make([]int, 0, len(d.Buckets))
	for id, b := range d.Buckets {
		if b.populated() {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	out := make([]BucketSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.summarize(d.Buckets[id]))
	}
	return out
}

// Aggregator owns the canonical true-progress dimension, the optional
// displayed-progress dimension, and the 1% progress-update watermark.
type Aggregator struct {
	True      *Dimension
	Displayed *Dimension // nil when disabled

	LastProgressUpdate int
}

func newAggregator(cfg AnalyticsConfig) *Aggregator {
	a := &Aggregator{
		True:               newDimension(dimensionTrue, cfg.Granularity),
		LastProgressUpdate: -1,
	}
	if cfg.DisplayedDimension {
		a.Displayed = newDimension(dimensionDisplayed, cfg.DisplayedGranularity)
	}
	return a
}

// Observe folds one tick into every dimension and returns the finalized summaries.
func (a *Aggregator) Observe(truePct, displayedPct float64, m TickMetrics) []BucketSummary {
	out := a.True.Observe(truePct, m)
	if a.Displayed != nil {
		out = append(out, a.Displayed.Observe(displayedPct, m)...)
	}
	return out
}

// Finalize closes out every dimension at completion.
func (a *Aggregator) Finalize() []BucketSummary {
	out := a.True.Finalize()
	if a.Displayed != nil {
		out = append(out, a.Displayed.Finalize()...)
	}
	return out
}

// AddDrag attributes a completed drag to the current buckets.
func (a *Aggregator) AddDrag(truePct, displayedPct float64, dur time.Duration) {
	a.True.AddDrag(truePct, dur)
	if a.Displayed != nil {
		a.Displayed.AddDrag(displayedPct, dur)
	}
}

// ProgressUpdateDue reports whether truePct entered a new 1% bucket, and advances the watermark.
func (a *Aggregator) ProgressUpdateDue(truePct float64) bool {
	b := int(math.Floor(truePct))
	if b <= a.LastProgressUpdate {
		return false
	}
	a.LastProgressUpdate = b
	return true
}

package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PercentStat summarizes one metric over a 1% slice of true progress.
type PercentStat struct {
	Percent int     `json:"percent"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Count   int     `json:"count"`
}

// AnalyticsReport is the on-demand diagnostic dump.
type AnalyticsReport struct {
	GeneratedAt time.Time `json:"generated_at"`

	TrackSamples int           `json:"track_samples"`
	Freezes      int           `json:"freezes"`
	Speed        []PercentStat `json:"speed_by_percent"`
	Offset       []PercentStat `json:"offset_by_percent"`

	PauseSeconds []float64       `json:"pause_seconds"`
	Buckets      []BucketSummary `json:"buckets"`
}

// BuildAnalyticsReport computes per-percent statistics over the track log.
func BuildAnalyticsReport(s *SimulationState, maxProgress float64, now time.Time) AnalyticsReport {
	r := AnalyticsReport{
		GeneratedAt:  now,
		TrackSamples: s.Track.Len(),
		Freezes:      s.Deception.Freezes,
		Speed:        percentStats(s.Track, maxProgress, func(e TrackEntry) float64 { return e.Speed }),
		Offset:       percentStats(s.Track, maxProgress, func(e TrackEntry) float64 { return e.Offset }),
		PauseSeconds: make([]float64, 0, len(s.Sessions.Pauses)),
	}
	for _, p := range s.Sessions.Pauses {
		r.PauseSeconds = append(r.PauseSeconds, p.Seconds())
	}
	r.Buckets = s.Metrics.True.Summaries()
	if s.Metrics.Displayed != nil {
		r.Buckets = append(r.Buckets, s.Metrics.Displayed.Summaries()...)
	}
	return r
}

func percentStats(l *TrackLog, maxProgress float64, metric func(TrackEntry) float64) []PercentStat {
	keys, groups := l.ByPercent(maxProgress, metric)
	out := make([]PercentStat, 0, len(keys))
	for _, k := range keys {
		xs := groups[k]
		mean, std := stat.MeanStdDev(xs, nil)
		if math.IsNaN(std) {
			std = 0
		}
		out = append(out, PercentStat{Percent: k, Mean: mean, StdDev: std, Count: len(xs)})
	}
	return out
}

// Format renders the report as plain text for the diagnostic writer.
func (r AnalyticsReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analytics at %s (%d track samples, %d freezes)\n",
		r.GeneratedAt.UTC().Format(isoMillis), r.TrackSamples, r.Freezes)

	b.WriteString("Average mouse speeds by 1% progress:\n")
	for _, s := range r.Speed {
		fmt.Fprintf(&b, "  %3d%%: %.2f px/s (sd %.2f, n=%d)\n", s.Percent, s.Mean, s.StdDev, s.Count)
	}

	b.WriteString("Average offset by 1% progress:\n")
	for _, s := range r.Offset {
		fmt.Fprintf(&b, "  %3d%%: %.2f%% (sd %.2f, n=%d)\n", s.Percent, s.Mean, s.StdDev, s.Count)
	}

	b.WriteString("Pause durations (s):")
	if len(r.PauseSeconds) == 0 {
		b.WriteString(" none")
	}
	for _, p := range r.PauseSeconds {
		fmt.Fprintf(&b, " %.2f", p)
	}
	b.WriteString("\n")

	for _, s := range r.Buckets {
		b.WriteString("  ")
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return b.String()
}

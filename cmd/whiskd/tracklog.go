package main

import (
	"math"
	"sort"
	"time"
)

// TrackEntry is one per-tick record of a drag in progress.
type TrackEntry struct {
	At                time.Time `json:"-"`
	TrueProgress      float64   `json:"true_progress"`
	Speed             float64   `json:"speed"`
	DisplayedProgress float64   `json:"displayed_progress"`
	Offset            float64   `json:"offset"` // true percent minus displayed percent
}

// TrackLog is an append-only, time-ordered record kept for the process lifetime.
// It is owned by the daemon goroutine and is not safe for concurrent use.
type TrackLog struct {
	entries []TrackEntry
}

func newTrackLog() *TrackLog {
	return &TrackLog{entries: make([]TrackEntry, 0, 1024)}
}

// Append records an entry. Entries must arrive in non-decreasing time order.
func (l *TrackLog) Append(e TrackEntry) {
	l.entries = append(l.entries, e)
}

func (l *TrackLog) Len() int { return len(l.entries) }

// Entries returns the backing slice; callers must not modify it.
func (l *TrackLog) Entries() []TrackEntry { return l.entries }

// Rate returns the true-progress velocity (units/s) across the entries that fall
// within window before now, measured between the first and last entry.
//
// ok is false when fewer than two entries are in the window or they share a timestamp.
func (l *TrackLog) Rate(now time.Time, window time.Duration) (rate float64, ok bool) {
	cutoff := now.Add(-window)
	i := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].At.Before(cutoff)
	})

	recent := l.entries[i:]
	if len(recent) < 2 {
		return 0, false
	}

	first, last := recent[0], recent[len(recent)-1]
	dt := last.At.Sub(first.At).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return (last.TrueProgress - first.TrueProgress) / dt, true
}

// ByPercent groups a metric by 1% bucket of true progress, in ascending bucket order.
func (l *TrackLog) ByPercent(maxProgress float64, metric func(TrackEntry) float64) ([]int, map[int][]float64) {
	groups := make(map[int][]float64)
	if maxProgress <= 0 {
		return nil, groups
	}
	for _, e := range l.entries {
		b := int(math.Floor(e.TrueProgress / maxProgress * 100))
		if b > 99 {
			b = 99
		}
		groups[b] = append(groups[b], metric(e))
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys, groups
}

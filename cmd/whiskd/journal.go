package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// JournalObserver is notified of every appended line and of store failures.
type JournalObserver interface {
	JournalLine(line string)
	JournalWarning(message string)
}

// Journal is the study log: ISO-8601-prefixed lines kept in memory and
// persisted as one joined buffer into a single store slot.
//
// Append never touches the store. It marks the buffer dirty and RunPersister
// writes the latest buffer; every write carries the whole log, so coalescing
// appends loses nothing.
type Journal struct {
	mu    sync.Mutex
	lines []string

	store   KVStore
	slot    string
	timeout time.Duration
	dirty   chan struct{}

	observer JournalObserver
	logger   *slog.Logger
}

func NewJournal(store KVStore, slot string, logger *slog.Logger) *Journal {
	return &Journal{
		store:   store,
		slot:    slot,
		timeout: 2 * time.Second,
		dirty:   make(chan struct{}, 1),
		logger:  logger,
	}
}

// SetObserver installs the observer. Call before the daemon starts.
func (j *Journal) SetObserver(o JournalObserver) { j.observer = o }

// formatJournalLine prefixes message with the ISO-8601 UTC label of at.
func formatJournalLine(at time.Time, message string) string {
	return at.UTC().Format(isoMillis) + " - " + message
}

// Append adds one line and schedules a persist. It does not block.
func (j *Journal) Append(at time.Time, message string) string {
	line := formatJournalLine(at, message)

	j.mu.Lock()
	j.lines = append(j.lines, line)
	j.mu.Unlock()

	if j.observer != nil {
		j.observer.JournalLine(line)
	}

	select {
	case j.dirty <- struct{}{}:
	default:
		// A persist is already pending and will pick this line up.
	}
	return line
}

// RunPersister writes the buffer after appends until ctx is canceled, then
// flushes whatever is still pending.
func (j *Journal) RunPersister(ctx context.Context) {
	if j.store == nil {
		return
	}
	// Writes outlive cancellation so the shutdown flush can land; each one is
	// still bounded by j.timeout.
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			select {
			case <-j.dirty:
				j.Flush(writeCtx)
			default:
			}
			return
		case <-j.dirty:
			j.Flush(writeCtx)
		}
	}
}

// Flush writes the current buffer to the store slot.
//
// A failed write is reported to the observer and the logger and otherwise
// ignored; the lines stay in memory and go out with the next write.
func (j *Journal) Flush(ctx context.Context) {
	if j.store == nil {
		return
	}
	buf := j.Text()

	putCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if err := j.store.Put(putCtx, j.slot, buf); err != nil {
		j.logger.Warn("journal persist failed", "slot", j.slot, "error", err)
		if j.observer != nil {
			j.observer.JournalWarning(fmt.Sprintf("log could not be saved: %v", err))
		}
	}
}

// Lines returns a copy of the buffered lines.
func (j *Journal) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.lines))
	copy(out, j.lines)
	return out
}

// Text returns the buffer exactly as persisted.
func (j *Journal) Text() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return strings.Join(j.lines, "\n")
}

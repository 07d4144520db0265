package main

import "time"

// SessionState tracks drag sessions and the pauses between them.
// At most one session is live at a time.
type SessionState struct {
	LiveSince time.Time // zero when no session is live

	PauseSince time.Time // zero until the first release
	Pauses     []time.Duration

	Completed int
}

func (s *SessionState) Live() bool { return !s.LiveSince.IsZero() }

// Start opens a session. If a pause was open it is closed and returned.
// Starting while a session is already live keeps the original start time.
func (s *SessionState) Start(now time.Time) (pause time.Duration, hadPause bool) {
	if !s.PauseSince.IsZero() {
		pause = now.Sub(s.PauseSince)
		if pause < 0 {
			pause = 0
		}
		s.Pauses = append(s.Pauses, pause)
		s.PauseSince = time.Time{}
		hadPause = true
	}
	if s.LiveSince.IsZero() {
		s.LiveSince = now
	}
	return pause, hadPause
}

// End closes the live session and opens a pause.
// ok is false when no session had started; such a release is a cancelled session.
func (s *SessionState) End(now time.Time) (dur time.Duration, ok bool) {
	if s.LiveSince.IsZero() {
		return 0, false
	}
	dur = now.Sub(s.LiveSince)
	if dur < 0 {
		dur = 0
	}
	s.LiveSince = time.Time{}
	s.PauseSince = now
	s.Completed++
	return dur, true
}

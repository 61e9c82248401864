package detector

import "time"

// StabilityTracker debounces the written MIDI note across analysis ticks.
type StabilityTracker struct {
	lastWrittenMIDI int
	hasNote         bool
	stableSince     time.Time
}

// Observe records the note seen at now and reports whether it has been
// constant for at least window. A changed note restarts the timer.
func (t *StabilityTracker) Observe(writtenMIDI int, now time.Time, window time.Duration) bool {
	if !t.hasNote || writtenMIDI != t.lastWrittenMIDI {
		t.lastWrittenMIDI = writtenMIDI
		t.hasNote = true
		t.stableSince = now
		return false
	}
	return now.Sub(t.stableSince) >= window
}

// Reset forgets the tracked note.
func (t *StabilityTracker) Reset() {
	*t = StabilityTracker{}
}

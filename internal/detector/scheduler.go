package detector

import (
	"sync"
	"time"
)

// FrameScheduler delivers one callback on the next display frame, in the
// manner of an animation-frame clock. Recurring analysis re-requests a frame
// from inside each callback.
type FrameScheduler interface {
	// RequestFrame schedules fn once and returns a function cancelling the
	// request if it has not fired yet.
	RequestFrame(fn func(now time.Time)) (cancel func())
}

// TimerScheduler fires frames from a timer at a fixed rate. It stands in
// for a display clock when no renderer is driving the detector.
type TimerScheduler struct {
	Interval time.Duration
}

// NewTimerScheduler creates a scheduler firing fps frames per second.
func NewTimerScheduler(fps int) *TimerScheduler {
	if fps <= 0 {
		fps = 60
	}
	return &TimerScheduler{Interval: time.Second / time.Duration(fps)}
}

// RequestFrame implements FrameScheduler.
func (s *TimerScheduler) RequestFrame(fn func(now time.Time)) func() {
	t := time.AfterFunc(s.Interval, func() {
		fn(time.Now())
	})
	return func() { t.Stop() }
}

// FrameQueue holds at most one pending frame callback until an external
// clock calls Fire. A renderer's frame loop drives it.
type FrameQueue struct {
	mu      sync.Mutex
	pending func(now time.Time)
	seq     uint64
}

// RequestFrame implements FrameScheduler. A new request replaces any
// pending one.
func (q *FrameQueue) RequestFrame(fn func(now time.Time)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	id := q.seq
	q.pending = fn

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.seq == id {
			q.pending = nil
		}
	}
}

// Fire runs the pending callback, if any, with the frame timestamp. It
// reports whether a callback ran.
func (q *FrameQueue) Fire(now time.Time) bool {
	q.mu.Lock()
	fn := q.pending
	q.pending = nil
	q.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(now)
	return true
}

// Pending reports whether a frame has been requested and not yet fired.
func (q *FrameQueue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending != nil
}

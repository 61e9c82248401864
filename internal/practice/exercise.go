// Package practice scores a sequence of target notes against stable pitch
// readings.
package practice

import (
	"errors"
	"sync"

	"github.com/0xlemi/trumpetstar/internal/pitch"
)

// ErrNoTargets is returned when an exercise has nothing to play.
var ErrNoTargets = errors.New("exercise needs at least one target note")

// Outcome classifies one observed reading.
type Outcome int

const (
	Ignored Outcome = iota // repeat of an already judged reading, or exercise finished
	Hit
	OutOfTune // right note, cents outside tolerance
	Miss
)

// Result describes how a reading was judged.
type Result struct {
	Outcome Outcome
	Target  int // written MIDI of the target at the time of the reading
	Played  int // written MIDI played
	Cents   int
}

// Score is the running tally.
type Score struct {
	Hits   int
	Misses int
}

// Exercise walks through target notes in order. It is safe for concurrent
// use.
type Exercise struct {
	mu        sync.Mutex
	targets   []int
	tolerance int
	index     int
	score     Score
	lastWrong int
	judged    bool // lastWrong holds a reading already counted as a miss
	lastHit   int
	holding   bool // lastHit is still sounding from the previous target
}

// New creates an exercise over written MIDI targets.
func New(targets []int, toleranceCents int) (*Exercise, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if toleranceCents < 0 {
		toleranceCents = -toleranceCents
	}
	return &Exercise{
		targets:   append([]int(nil), targets...),
		tolerance: toleranceCents,
	}, nil
}

// Observe judges a stable reading. Readings are re-emitted every frame while
// a note is held, so a wrong note is only counted once until something
// else is played, and a note that just scored a hit is ignored until a
// different note arrives. Repeated targets therefore need a new attack.
func (e *Exercise) Observe(p pitch.PitchData) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index >= len(e.targets) {
		return Result{Outcome: Ignored, Played: p.WrittenMIDI, Cents: p.Cents}
	}

	target := e.targets[e.index]
	res := Result{Target: target, Played: p.WrittenMIDI, Cents: p.Cents}

	if e.holding {
		if p.WrittenMIDI == e.lastHit {
			res.Outcome = Ignored
			return res
		}
		e.holding = false
	}

	switch {
	case p.WrittenMIDI == target && abs(p.Cents) <= e.tolerance:
		e.index++
		e.score.Hits++
		e.judged = false
		e.lastHit = p.WrittenMIDI
		e.holding = true
		res.Outcome = Hit
	case p.WrittenMIDI == target:
		res.Outcome = OutOfTune
	case e.judged && e.lastWrong == p.WrittenMIDI:
		res.Outcome = Ignored
	default:
		e.score.Misses++
		e.lastWrong = p.WrittenMIDI
		e.judged = true
		res.Outcome = Miss
	}

	return res
}

// Current returns the written MIDI note to play next.
func (e *Exercise) Current() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index >= len(e.targets) {
		return 0, false
	}
	return e.targets[e.index], true
}

// Progress returns the number of completed targets and the total.
func (e *Exercise) Progress() (done, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index, len(e.targets)
}

// Done reports whether every target has been hit.
func (e *Exercise) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index >= len(e.targets)
}

// Score returns the running tally.
func (e *Exercise) Score() Score {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// Reset starts the exercise over.
func (e *Exercise) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.index = 0
	e.score = Score{}
	e.judged = false
	e.holding = false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

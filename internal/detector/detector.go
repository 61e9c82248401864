// Package detector turns a live microphone stream into stable trumpet
// pitch readings.
//
// A Detector owns one audio session while listening. Each frame of its
// FrameScheduler it captures the latest window of samples, estimates the
// fundamental, maps it to a written Bb trumpet note and only publishes a
// pitch.PitchData once that note has held for the stability window.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/0xlemi/trumpetstar/internal/audio"
	"github.com/0xlemi/trumpetstar/internal/pitch"
)

// State is the listening state of a Detector.
type State int

// Unstable prints as "listening": the microphone is open but no note has
// held for the stability window yet.
const (
	Idle     State = iota // not listening
	Unstable              // listening, no stable note
	Stable                // the current reading is stable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Unstable:
		return "listening"
	case Stable:
		return "stable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Detector is the pitch detection pipeline for one microphone.
type Detector struct {
	source audio.Source
	opts   options
	logger *slog.Logger

	mu          sync.Mutex
	listening   bool
	starting    bool
	generation  uint64
	session     audio.Session
	cancelFrame func()
	buffer      []float64
	tracker     StabilityTracker
	stable      bool
	current     pitch.PitchData
	hasPitch    bool
	errMsg      string
	listeners   []func(pitch.PitchData)
}

// New creates an idle detector reading from source.
func New(source audio.Source, opts ...Option) *Detector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.scheduler == nil {
		o.scheduler = NewTimerScheduler(DefaultFPS)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Detector{
		source: source,
		opts:   o,
		logger: logger.With("component", "detector"),
	}
}

// OnPitchDetected registers fn to receive every emitted reading. Callbacks
// run on the scheduler's goroutine without the detector lock held and may
// call Stop.
func (d *Detector) OnPitchDetected(fn func(pitch.PitchData)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Start acquires the microphone and begins analysis. It is a no-op while
// already listening. On failure the detector stays idle and Err reports
// a human-readable message; the caller decides whether to retry.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.listening || d.starting {
		d.mu.Unlock()
		return nil
	}
	d.starting = true
	d.errMsg = ""
	gen := d.generation
	d.mu.Unlock()

	// opening hardware may block; readers must not wait on it
	session, err := d.source.Open(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.starting = false

	if err != nil {
		if !errors.Is(err, audio.ErrMicrophoneUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrMicrophoneUnavailable, err)
		}
		d.errMsg = err.Error()
		d.logger.Warn("microphone unavailable", "error", err)
		return fmt.Errorf("start listening: %w", err)
	}

	if d.generation != gen {
		// stopped while the device was opening
		_ = session.Close()
		return nil
	}

	d.session = session
	d.buffer = make([]float64, d.opts.windowSize)
	d.tracker.Reset()
	d.stable = false
	d.listening = true
	d.generation++
	d.requestFrameLocked()

	d.logger.Debug("listening started",
		"sample_rate", session.SampleRate(),
		"window", d.opts.windowSize,
		"calibration_cents", d.opts.calibrationCents)
	return nil
}

// Listen starts the detector and stops it when ctx is done.
func (d *Detector) Listen(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	context.AfterFunc(ctx, func() {
		d.stopGeneration(gen)
	})
	return nil
}

// Stop cancels the pending frame, releases the microphone and clears the
// published reading. It is safe to call at any time, any number of times.
// Once Stop returns no listener call starts; one already running on the
// scheduler's goroutine finishes with the reading it was given.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Detector) stopGeneration(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listening && d.generation == gen {
		d.stopLocked()
	}
}

func (d *Detector) stopLocked() {
	if d.cancelFrame != nil {
		d.cancelFrame()
		d.cancelFrame = nil
	}

	if d.session != nil {
		// teardown is best effort
		if err := d.session.Close(); err != nil {
			d.logger.Debug("closing audio session", "error", err)
		}
		d.session = nil
		d.logger.Debug("listening stopped")
	}

	d.listening = false
	d.generation++
	d.buffer = nil
	d.tracker.Reset()
	d.stable = false
	d.current = pitch.PitchData{}
	d.hasPitch = false
}

// IsListening reports whether the microphone is held.
func (d *Detector) IsListening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

// State reports the detector state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case !d.listening:
		return Idle
	case d.stable:
		return Stable
	default:
		return Unstable
	}
}

// PitchData returns the last emitted reading.
func (d *Detector) PitchData() (pitch.PitchData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.hasPitch
}

// Err returns the message of the last start failure, or "".
func (d *Detector) Err() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errMsg
}

func (d *Detector) requestFrameLocked() {
	gen := d.generation
	d.cancelFrame = d.opts.scheduler.RequestFrame(func(now time.Time) {
		d.tick(gen, now)
	})
}

func (d *Detector) tick(gen uint64, now time.Time) {
	d.mu.Lock()
	if !d.listening || d.generation != gen {
		d.mu.Unlock()
		return
	}

	reading, ok := d.analyzeLocked(now)
	listeners := d.listeners
	d.mu.Unlock()

	if ok {
		for _, fn := range listeners {
			// an earlier listener may have stopped or restarted us
			if !d.running(gen) {
				return
			}
			fn(reading)
		}
	}

	// the next frame is only requested once delivery is over, so ticks of
	// one session never overlap
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listening && d.generation == gen {
		d.requestFrameLocked()
	}
}

func (d *Detector) running(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening && d.generation == gen
}

// analyzeLocked runs one analysis tick and reports whether a stable
// reading was published.
func (d *Detector) analyzeLocked(now time.Time) (pitch.PitchData, bool) {
	d.session.TimeDomain(d.buffer)
	est := d.opts.estimator.Estimate(d.buffer, d.session.SampleRate())

	if est.Frequency <= d.opts.minFrequency || est.Frequency >= d.opts.maxFrequency ||
		est.RMS < d.opts.confidenceThreshold {
		return pitch.PitchData{}, false
	}

	midi, cents := pitch.FrequencyToMIDI(est.Frequency, d.opts.calibrationCents)
	if !d.tracker.Observe(pitch.Transpose(midi), now, d.opts.stabilityWindow) {
		d.stable = false
		return pitch.PitchData{}, false
	}

	reading := pitch.NewPitchData(est.Frequency, midi, cents, confidence(est.RMS))
	if !d.hasPitch || d.current.WrittenMIDI != reading.WrittenMIDI {
		d.logger.Debug("stable note",
			"written", reading.Written(),
			"concert", reading.Concert(),
			"frequency", est.Frequency,
			"cents", cents)
	}

	d.stable = true
	d.current = reading
	d.hasPitch = true
	return reading, true
}

// confidence maps RMS onto [0, 1]; a tenth of full scale reads as certain.
func confidence(rms float64) float64 {
	return math.Max(0, math.Min(1, rms*10))
}

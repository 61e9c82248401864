package audio

import (
	"context"
	"errors"
	"sync"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Errors
var (
	ErrMicrophoneUnavailable = errors.New("microphone access denied or unavailable")
	ErrSessionClosed         = errors.New("audio session already closed")
)

// Source acquires exclusive microphone sessions.
type Source interface {
	// Open starts capturing from the input device. The returned session
	// owns the hardware until Close is called.
	Open(ctx context.Context) (Session, error)
}

// Session is one live microphone stream.
type Session interface {
	// SampleRate returns the native sample rate of the stream in Hz.
	SampleRate() float64

	// TimeDomain copies the most recent len(dst) samples into dst, oldest
	// first. Missing history is zero-filled.
	TimeDomain(dst []float64)

	// Close stops the stream and releases the device.
	Close() error
}

// Config describes the requested input format.
type Config struct {
	SampleRate float64
	Channels   int
	WindowSize int     // samples kept for analysis
	Gain       float64 // input amplification factor
}

// DefaultConfig returns mono 44.1 kHz capture with a 4096 sample window.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		Channels:   1,
		WindowSize: 4096,
		Gain:       1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.Gain <= 0 {
		c.Gain = d.Gain
	}
	return c
}

// Window is a sliding window over the latest mono samples delivered by a
// device callback. It is safe for one writer and concurrent readers.
type Window struct {
	mu     sync.Mutex
	ring   []float64
	pos    int // next write index
	filled int
	gain   float64
	mono   []float64
	scaled []float64
}

// NewWindow creates a window holding size samples.
func NewWindow(size int) *Window {
	return &Window{
		ring: make([]float64, size),
		gain: 1,
	}
}

// SetGain sets the amplification applied to incoming samples.
func (w *Window) SetGain(factor float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if factor < 0.1 {
		factor = 0.1
	}
	w.gain = factor
}

// WriteInterleaved appends interleaved frames, averaging channels to mono.
func (w *Window) WriteInterleaved(in []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	frames := len(in) / channels
	if frames == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if cap(w.mono) < frames {
		w.mono = make([]float64, frames)
		w.scaled = make([]float64, frames)
	}
	w.mono, w.scaled = w.mono[:frames], w.scaled[:frames]

	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += float64(in[i*channels+ch])
		}
		w.mono[i] = sum / float64(channels)
	}
	vecmath.ScaleBlock(w.scaled, w.mono, w.gain)

	w.push(w.scaled)
}

func (w *Window) push(samples []float64) {
	size := len(w.ring)
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}
	for len(samples) > 0 {
		n := copy(w.ring[w.pos:], samples)
		samples = samples[n:]
		w.pos = (w.pos + n) % size
		w.filled = min(w.filled+n, size)
	}
}

// Snapshot copies the latest len(dst) samples into dst, oldest first.
func (w *Window) Snapshot(dst []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	size := len(w.ring)
	want := min(len(dst), size)
	have := min(want, w.filled)

	pad := len(dst) - have
	clear(dst[:pad])

	start := (w.pos - have + size) % size
	out := dst[pad:]
	n := copy(out, w.ring[start:min(start+have, size)])
	copy(out[n:], w.ring[:have-n])
}

// Reset discards all buffered samples.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.ring)
	w.pos = 0
	w.filled = 0
}

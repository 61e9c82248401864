package detector

import (
	"log/slog"
	"time"

	"github.com/0xlemi/trumpetstar/internal/pitch"
)

// Defaults
const (
	DefaultWindowSize          = 4096
	DefaultStabilityWindow     = 100 * time.Millisecond
	DefaultMinFrequency        = 50.0
	DefaultMaxFrequency        = 2000.0
	DefaultConfidenceThreshold = 0.01
	DefaultFPS                 = 60
)

type options struct {
	calibrationCents    int
	confidenceThreshold float64
	stabilityWindow     time.Duration
	minFrequency        float64
	maxFrequency        float64
	windowSize          int
	scheduler           FrameScheduler
	estimator           pitch.Estimator
	logger              *slog.Logger
}

func defaultOptions() options {
	return options{
		confidenceThreshold: DefaultConfidenceThreshold,
		stabilityWindow:     DefaultStabilityWindow,
		minFrequency:        DefaultMinFrequency,
		maxFrequency:        DefaultMaxFrequency,
		windowSize:          DefaultWindowSize,
		estimator:           pitch.AutocorrelationEstimator,
	}
}

// Option configures a Detector.
type Option func(*options)

// WithCalibrationCents shifts the A4 reference by cents.
func WithCalibrationCents(cents int) Option {
	return func(o *options) {
		o.calibrationCents = cents
	}
}

// WithConfidenceThreshold sets the minimum RMS a tick needs to count.
func WithConfidenceThreshold(rms float64) Option {
	return func(o *options) {
		if rms >= 0 {
			o.confidenceThreshold = rms
		}
	}
}

// WithStabilityWindow sets how long a note must hold before it is emitted.
func WithStabilityWindow(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.stabilityWindow = d
		}
	}
}

// WithFrequencyRange sets the open interval of accepted frequencies.
func WithFrequencyRange(minHz, maxHz float64) Option {
	return func(o *options) {
		if minHz >= 0 && maxHz > minHz {
			o.minFrequency = minHz
			o.maxFrequency = maxHz
		}
	}
}

// WithWindowSize sets the analysis buffer length. Odd sizes are rounded down.
func WithWindowSize(n int) Option {
	return func(o *options) {
		if n >= 4 {
			o.windowSize = n &^ 1
		}
	}
}

// WithScheduler sets the frame clock driving analysis ticks.
func WithScheduler(s FrameScheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithEstimator replaces the autocorrelation estimator.
func WithEstimator(e pitch.Estimator) Option {
	return func(o *options) {
		if e != nil {
			o.estimator = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

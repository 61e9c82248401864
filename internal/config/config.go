// Package config loads trainer settings from flags, environment and an
// optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/0xlemi/trumpetstar/internal/pitch"
)

// Errors
var (
	ErrInvalidSensitivity = errors.New("invalid sensitivity")
	ErrInvalidBackend     = errors.New("invalid audio backend")
	ErrInvalidMethod      = errors.New("invalid detection method")
	ErrInvalidValue       = errors.New("invalid setting")
)

// EnvPrefix is prepended to environment variable names.
const EnvPrefix = "TRUMPETSTAR"

// Keys
const (
	KeyCalibration     = "calibration"
	KeySensitivity     = "sensitivity"
	KeyBackend         = "backend"
	KeyMethod          = "method"
	KeyFPS             = "fps"
	KeySampleRate      = "sample-rate"
	KeyGain            = "gain"
	KeyStabilityWindow = "stability-window"
	KeyTargets         = "targets"
	KeyTolerance       = "tolerance"
	KeyHeadless        = "headless"
	KeyLogLevel        = "log-level"
	KeyLogFile         = "log-file"
)

// Audio backends
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// Detection methods
const (
	MethodAutocorrelation = "autocorrelation"
	MethodSpectral        = "spectral"
)

// sensitivityThresholds maps user-facing sensitivity to minimum RMS.
// Higher sensitivity accepts quieter playing.
var sensitivityThresholds = map[string]float64{
	"low":    0.02,
	"medium": 0.01,
	"high":   0.005,
}

// Settings holds the resolved configuration.
type Settings struct {
	CalibrationCents    int
	Sensitivity         string
	ConfidenceThreshold float64
	Backend             string
	Method              string
	FPS                 int
	SampleRate          float64
	Gain                float64
	StabilityWindow     time.Duration
	Targets             []int // written MIDI notes
	ToleranceCents      int
	Headless            bool
	LogLevel            slog.Level
	LogFile             string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyCalibration, 0)
	v.SetDefault(KeySensitivity, "medium")
	v.SetDefault(KeyBackend, BackendPortAudio)
	v.SetDefault(KeyMethod, MethodAutocorrelation)
	v.SetDefault(KeyFPS, 60)
	v.SetDefault(KeySampleRate, 44100)
	v.SetDefault(KeyGain, 1.0)
	v.SetDefault(KeyStabilityWindow, 100*time.Millisecond)
	v.SetDefault(KeyTargets, []string{})
	v.SetDefault(KeyTolerance, 25)
	v.SetDefault(KeyHeadless, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML config file into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// Load resolves and validates settings from v.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		CalibrationCents: v.GetInt(KeyCalibration),
		Sensitivity:      strings.ToLower(v.GetString(KeySensitivity)),
		Backend:          strings.ToLower(v.GetString(KeyBackend)),
		Method:           strings.ToLower(v.GetString(KeyMethod)),
		FPS:              v.GetInt(KeyFPS),
		SampleRate:       v.GetFloat64(KeySampleRate),
		Gain:             v.GetFloat64(KeyGain),
		StabilityWindow:  v.GetDuration(KeyStabilityWindow),
		ToleranceCents:   v.GetInt(KeyTolerance),
		Headless:         v.GetBool(KeyHeadless),
		LogFile:          v.GetString(KeyLogFile),
	}

	threshold, ok := sensitivityThresholds[s.Sensitivity]
	if !ok {
		return Settings{}, fmt.Errorf("%w: %q (want low, medium or high)", ErrInvalidSensitivity, s.Sensitivity)
	}
	s.ConfidenceThreshold = threshold

	switch s.Backend {
	case BackendPortAudio, BackendMalgo:
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrInvalidBackend, s.Backend)
	}

	switch s.Method {
	case MethodAutocorrelation, MethodSpectral:
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrInvalidMethod, s.Method)
	}

	if s.CalibrationCents < -100 || s.CalibrationCents > 100 {
		return Settings{}, fmt.Errorf("%w: calibration %d outside [-100, 100] cents", ErrInvalidValue, s.CalibrationCents)
	}
	if s.FPS < 1 || s.FPS > 240 {
		return Settings{}, fmt.Errorf("%w: fps %d outside [1, 240]", ErrInvalidValue, s.FPS)
	}
	if s.SampleRate < 8000 {
		return Settings{}, fmt.Errorf("%w: sample rate %.0f below 8000 Hz", ErrInvalidValue, s.SampleRate)
	}
	if s.Gain <= 0 {
		return Settings{}, fmt.Errorf("%w: gain must be positive", ErrInvalidValue)
	}
	if s.StabilityWindow < 0 {
		return Settings{}, fmt.Errorf("%w: negative stability window", ErrInvalidValue)
	}
	if s.ToleranceCents < 0 || s.ToleranceCents > 50 {
		return Settings{}, fmt.Errorf("%w: tolerance %d outside [0, 50] cents", ErrInvalidValue, s.ToleranceCents)
	}

	if err := s.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Settings{}, fmt.Errorf("%w: log level: %w", ErrInvalidValue, err)
	}

	targets, err := parseTargets(v.GetStringSlice(KeyTargets))
	if err != nil {
		return Settings{}, err
	}
	s.Targets = targets

	return s, nil
}

// parseTargets accepts note names separated by commas or spaces.
func parseTargets(raw []string) ([]int, error) {
	var targets []int
	for _, item := range raw {
		for _, name := range strings.FieldsFunc(item, func(r rune) bool {
			return r == ',' || r == ' '
		}) {
			midi, err := pitch.ParseNote(name)
			if err != nil {
				return nil, fmt.Errorf("practice target: %w", err)
			}
			targets = append(targets, midi)
		}
	}
	return targets, nil
}

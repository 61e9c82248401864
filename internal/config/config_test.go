package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlemi/trumpetstar/internal/pitch"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 0, s.CalibrationCents)
	assert.Equal(t, "medium", s.Sensitivity)
	assert.InDelta(t, 0.01, s.ConfidenceThreshold, 1e-12)
	assert.Equal(t, BackendPortAudio, s.Backend)
	assert.Equal(t, MethodAutocorrelation, s.Method)
	assert.Equal(t, 60, s.FPS)
	assert.Equal(t, 44100.0, s.SampleRate)
	assert.Equal(t, 1.0, s.Gain)
	assert.Equal(t, 100*time.Millisecond, s.StabilityWindow)
	assert.Empty(t, s.Targets)
	assert.Equal(t, 25, s.ToleranceCents)
	assert.Equal(t, slog.LevelInfo, s.LogLevel)
}

func TestSensitivityMapping(t *testing.T) {
	tests := []struct {
		in        string
		threshold float64
	}{
		{"low", 0.02},
		{"medium", 0.01},
		{"HIGH", 0.005},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v := New()
			v.Set(KeySensitivity, tt.in)
			s, err := Load(v)
			require.NoError(t, err)
			assert.InDelta(t, tt.threshold, s.ConfidenceThreshold, 1e-12)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		err   error
	}{
		{"sensitivity", KeySensitivity, "extreme", ErrInvalidSensitivity},
		{"backend", KeyBackend, "jack", ErrInvalidBackend},
		{"method", KeyMethod, "yin", ErrInvalidMethod},
		{"calibration", KeyCalibration, 150, ErrInvalidValue},
		{"fps", KeyFPS, 0, ErrInvalidValue},
		{"sample_rate", KeySampleRate, 4000, ErrInvalidValue},
		{"gain", KeyGain, 0, ErrInvalidValue},
		{"tolerance", KeyTolerance, 60, ErrInvalidValue},
		{"log_level", KeyLogLevel, "loud", ErrInvalidValue},
		{"targets", KeyTargets, []string{"C4", "H2"}, pitch.ErrUnknownNote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTargets(t *testing.T) {
	v := New()
	v.Set(KeyTargets, []string{"C4, D4", "E4 Bb4"})
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []int{60, 62, 64, 70}, s.Targets)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("TRUMPETSTAR_CALIBRATION", "-12")
	t.Setenv("TRUMPETSTAR_SAMPLE_RATE", "48000")
	t.Setenv("TRUMPETSTAR_STABILITY_WINDOW", "150ms")

	s, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, -12, s.CalibrationCents)
	assert.Equal(t, 48000.0, s.SampleRate)
	assert.Equal(t, 150*time.Millisecond, s.StabilityWindow)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trumpetstar.yaml")
	content := "calibration: 8\nsensitivity: high\nmethod: spectral\nbackend: malgo\nlog-level: debug\ntargets:\n  - C4\n  - G4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := New()
	require.NoError(t, ReadFile(v, path))
	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 8, s.CalibrationCents)
	assert.Equal(t, "high", s.Sensitivity)
	assert.Equal(t, MethodSpectral, s.Method)
	assert.Equal(t, BackendMalgo, s.Backend)
	assert.Equal(t, slog.LevelDebug, s.LogLevel)
	assert.Equal(t, []int{60, 67}, s.Targets)

	assert.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "missing.yaml")))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/0xlemi/trumpetstar/internal/audio"
	"github.com/0xlemi/trumpetstar/internal/config"
	"github.com/0xlemi/trumpetstar/internal/detector"
	"github.com/0xlemi/trumpetstar/internal/pitch"
	"github.com/0xlemi/trumpetstar/internal/practice"
	"github.com/0xlemi/trumpetstar/internal/ui"
)

// errExerciseComplete ends a headless run once every target was played.
var errExerciseComplete = errors.New("exercise complete")

func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "trumpetstar",
		Short:        "Real-time pitch trainer for Bb trumpet",
		Long:         "Listens to the microphone, detects the note you play and shows it as written Bb trumpet pitch.",
		SilenceUsage: true,
		PreRunE: func(*cobra.Command, []string) error {
			if configFile == "" {
				return nil
			}
			return config.ReadFile(v, configFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), settings)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.Int(config.KeyCalibration, 0, "A4 reference offset in cents (-100..100)")
	flags.String(config.KeySensitivity, "medium", "input sensitivity: low, medium or high")
	flags.String(config.KeyBackend, config.BackendPortAudio, "audio backend: portaudio or malgo")
	flags.String(config.KeyMethod, config.MethodAutocorrelation, "detection method: autocorrelation or spectral")
	flags.Int(config.KeyFPS, detector.DefaultFPS, "analysis frames per second")
	flags.Float64(config.KeySampleRate, 44100, "capture sample rate in Hz")
	flags.Float64(config.KeyGain, 1, "input amplification")
	flags.Duration(config.KeyStabilityWindow, detector.DefaultStabilityWindow, "how long a note must hold before it is shown")
	flags.StringSlice(config.KeyTargets, nil, "practice notes in written pitch, e.g. C4,D4,E4")
	flags.Int(config.KeyTolerance, 25, "practice tuning tolerance in cents")
	flags.Bool(config.KeyHeadless, false, "log detections instead of drawing the terminal UI")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn or error")
	flags.String(config.KeyLogFile, "", "write logs to this file")

	bindFlags(v, cmd)

	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}
}

// Log rotation limits for --log-file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// newLogger builds the process logger. The terminal UI owns stdout and
// stderr, so without a log file its logs are discarded.
func newLogger(s config.Settings) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	switch {
	case s.LogFile != "":
		// lumberjack does not create directories
		if dir := filepath.Dir(s.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating log directory %s: %w", dir, err)
			}
		}
		lj := &lumberjack.Logger{
			Filename:   s.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		w = lj
		closeFn = func() { _ = lj.Close() }
	case !s.Headless:
		w = io.Discard
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.LogLevel})
	return slog.New(handler), closeFn, nil
}

func newSource(s config.Settings, logger *slog.Logger) audio.Source {
	cfg := audio.DefaultConfig()
	cfg.SampleRate = s.SampleRate
	cfg.WindowSize = detector.DefaultWindowSize
	cfg.Gain = s.Gain

	if s.Backend == config.BackendMalgo {
		return audio.NewMalgoSource(cfg, logger)
	}
	return audio.NewPortAudioSource(cfg)
}

func newEstimator(s config.Settings) pitch.Estimator {
	if s.Method == config.MethodSpectral {
		est := pitch.NewSpectralEstimator()
		est.MinFrequency = detector.DefaultMinFrequency
		est.MaxFrequency = detector.DefaultMaxFrequency
		return est
	}
	return pitch.AutocorrelationEstimator
}

func run(ctx context.Context, s config.Settings) error {
	logger, closeLog, err := newLogger(s)
	if err != nil {
		return err
	}
	defer closeLog()

	var exercise *practice.Exercise
	if len(s.Targets) > 0 {
		if exercise, err = practice.New(s.Targets, s.ToleranceCents); err != nil {
			return err
		}
	}

	logger.Info("starting",
		"backend", s.Backend,
		"method", s.Method,
		"sensitivity", s.Sensitivity,
		"calibration_cents", s.CalibrationCents,
		"targets", len(s.Targets))

	opts := []detector.Option{
		detector.WithCalibrationCents(s.CalibrationCents),
		detector.WithConfidenceThreshold(s.ConfidenceThreshold),
		detector.WithStabilityWindow(s.StabilityWindow),
		detector.WithEstimator(newEstimator(s)),
		detector.WithLogger(logger),
	}
	source := newSource(s, logger)

	if s.Headless {
		d := detector.New(source, append(opts, detector.WithScheduler(detector.NewTimerScheduler(s.FPS)))...)
		return runHeadless(ctx, d, exercise, logger)
	}

	frames := &detector.FrameQueue{}
	d := detector.New(source, append(opts, detector.WithScheduler(frames))...)
	defer d.Stop()

	p := tea.NewProgram(ui.NewModel(ctx, d, frames, exercise, s.FPS), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

// runHeadless logs each new stable note until ctx is cancelled or the
// exercise is finished.
func runHeadless(ctx context.Context, d *detector.Detector, exercise *practice.Exercise, logger *slog.Logger) error {
	var (
		mu          sync.Mutex
		finishOnce  sync.Once
		finished    = make(chan struct{})
		lastWritten = -1
	)

	// timer frames may overlap when a listener is slow
	d.OnPitchDetected(func(p pitch.PitchData) {
		mu.Lock()
		defer mu.Unlock()

		if p.WrittenMIDI != lastWritten {
			lastWritten = p.WrittenMIDI
			logger.Info("note",
				"written", p.Written(),
				"concert", p.Concert(),
				"frequency", fmt.Sprintf("%.2f", p.ConcertFrequency),
				"cents", p.Cents,
				"confidence", fmt.Sprintf("%.2f", p.Confidence))
		}

		if exercise == nil || exercise.Done() {
			return
		}
		res := exercise.Observe(p)
		switch res.Outcome {
		case practice.Hit:
			logger.Info("hit", "target", pitch.FormatNote(res.Target), "cents", res.Cents)
			if exercise.Done() {
				finishOnce.Do(func() { close(finished) })
			}
		case practice.Miss:
			logger.Info("miss", "target", pitch.FormatNote(res.Target), "played", pitch.FormatNote(res.Played))
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.Listen(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-finished:
			score := exercise.Score()
			logger.Info("exercise complete", "hits", score.Hits, "misses", score.Misses)
			return errExerciseComplete
		}
	})

	err := g.Wait()
	d.Stop()
	if errors.Is(err, errExerciseComplete) {
		return nil
	}
	return err
}

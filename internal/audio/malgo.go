package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoSource opens the default capture device through miniaudio. It is
// the fallback for systems where PortAudio is not installed.
type MalgoSource struct {
	config Config
	logger *slog.Logger
}

// NewMalgoSource creates a miniaudio-backed source.
func NewMalgoSource(config Config, logger *slog.Logger) *MalgoSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MalgoSource{
		config: config.withDefaults(),
		logger: logger.With("component", "malgo"),
	}
}

// Open initializes a miniaudio context and starts a float32 capture device.
func (s *MalgoSource) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	session := &malgoSession{
		ctx:        mctx,
		sampleRate: s.config.SampleRate,
		channels:   s.config.Channels,
		window:     NewWindow(s.config.WindowSize),
	}
	session.window.SetGain(s.config.Gain)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.config.Channels)
	deviceConfig.SampleRate = uint32(s.config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: session.onReceiveFrames,
	})
	if err != nil {
		session.releaseContext()
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		session.releaseContext()
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	session.device = device
	return session, nil
}

type malgoSession struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate float64
	channels   int
	window     *Window
	samples    []float32

	closeOnce sync.Once
}

// onReceiveFrames decodes little-endian float32 frames into the window.
func (s *malgoSession) onReceiveFrames(_, input []byte, _ uint32) {
	n := len(input) / 4
	if cap(s.samples) < n {
		s.samples = make([]float32, n)
	}
	s.samples = s.samples[:n]
	for i := range s.samples {
		s.samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}
	s.window.WriteInterleaved(s.samples, s.channels)
}

func (s *malgoSession) SampleRate() float64 {
	return s.sampleRate
}

func (s *malgoSession) TimeDomain(dst []float64) {
	s.window.Snapshot(dst)
}

func (s *malgoSession) Close() error {
	err := ErrSessionClosed
	s.closeOnce.Do(func() {
		err = s.device.Stop()
		s.device.Uninit()
		err = errors.Join(err, s.releaseContext())
		s.window.Reset()
	})
	return err
}

func (s *malgoSession) releaseContext() error {
	err := s.ctx.Uninit()
	s.ctx.Free()
	return err
}

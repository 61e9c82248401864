package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerCallback keeps callback latency well under one display frame.
const framesPerCallback = 512

// PortAudioSource opens the default input device through PortAudio.
type PortAudioSource struct {
	config Config
}

// NewPortAudioSource creates a source using PortAudio
func NewPortAudioSource(config Config) *PortAudioSource {
	return &PortAudioSource{config: config.withDefaults()}
}

// Open initializes PortAudio and starts the default input stream.
func (s *PortAudioSource) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	session := &portAudioSession{
		sampleRate: s.config.SampleRate,
		channels:   s.config.Channels,
		window:     NewWindow(s.config.WindowSize),
	}
	session.window.SetGain(s.config.Gain)

	stream, err := portaudio.OpenDefaultStream(
		s.config.Channels, // input channels
		0,                 // no output
		s.config.SampleRate,
		framesPerCallback,
		session.processAudio,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	session.stream = stream
	return session, nil
}

type portAudioSession struct {
	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	window     *Window

	closeOnce sync.Once
}

// processAudio is the PortAudio stream callback.
func (s *portAudioSession) processAudio(in, _ []float32) {
	s.window.WriteInterleaved(in, s.channels)
}

func (s *portAudioSession) SampleRate() float64 {
	return s.sampleRate
}

func (s *portAudioSession) TimeDomain(dst []float64) {
	s.window.Snapshot(dst)
}

// Close stops and closes the stream, then terminates PortAudio. Every step
// runs even if an earlier one fails.
func (s *portAudioSession) Close() error {
	err := ErrSessionClosed
	s.closeOnce.Do(func() {
		err = errors.Join(
			s.stream.Stop(),
			s.stream.Close(),
			portaudio.Terminate(),
		)
		s.window.Reset()
	})
	return err
}

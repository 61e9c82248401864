package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlemi/trumpetstar/internal/audio"
	"github.com/0xlemi/trumpetstar/internal/detector"
	"github.com/0xlemi/trumpetstar/internal/pitch"
	"github.com/0xlemi/trumpetstar/internal/practice"
)

type silentSession struct{}

func (silentSession) SampleRate() float64      { return 44100 }
func (silentSession) TimeDomain(dst []float64) { clear(dst) }
func (silentSession) Close() error             { return nil }

type stubSource struct{ err error }

func (s stubSource) Open(context.Context) (audio.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return silentSession{}, nil
}

// fixedPitch always reports concert A4.
var fixedPitch = pitch.EstimatorFunc(func([]float64, float64) pitch.Estimate {
	return pitch.Estimate{Frequency: 440, RMS: 0.2}
})

func newTestModel(t *testing.T, src audio.Source, exercise *practice.Exercise) (Model, *detector.Detector) {
	t.Helper()
	frames := &detector.FrameQueue{}
	d := detector.New(src, detector.WithScheduler(frames), detector.WithEstimator(fixedPitch))
	t.Cleanup(d.Stop)
	return NewModel(context.Background(), d, frames, exercise, 60), d
}

func runFrames(m Model, start time.Time, n int, step time.Duration) Model {
	for i := range n {
		next, _ := m.Update(FrameMsg(start.Add(time.Duration(i) * step)))
		m = next.(Model)
	}
	return m
}

func TestModelShowsStableNote(t *testing.T) {
	m, d := newTestModel(t, stubSource{}, nil)
	assert.Contains(t, m.View(), "Not listening")

	require.NoError(t, d.Start(context.Background()))
	m = runFrames(m, time.Unix(0, 0), 3, 10*time.Millisecond)
	assert.Contains(t, m.View(), "Listening")

	m = runFrames(m, time.Unix(0, 0).Add(30*time.Millisecond), 10, 10*time.Millisecond)
	view := m.View()
	assert.Contains(t, view, "B4")
	assert.Contains(t, view, "Concert: A4 440.00 Hz")
	assert.Contains(t, view, "+0¢")
	assert.Contains(t, view, "State: stable")
}

func TestModelSpaceTogglesListening(t *testing.T) {
	m, d := newTestModel(t, stubSource{}, nil)
	require.NoError(t, d.Start(context.Background()))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.False(t, d.IsListening())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.NotNil(t, cmd)
	msg := cmd()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.True(t, d.IsListening())
	assert.Contains(t, m.View(), "State: listening")
}

func TestModelQuitStopsDetector(t *testing.T) {
	m, d := newTestModel(t, stubSource{}, nil)
	require.NoError(t, d.Start(context.Background()))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, d.IsListening())
}

func TestModelShowsStartError(t *testing.T) {
	m, _ := newTestModel(t, stubSource{err: errors.New("no input device")}, nil)

	msg := m.startCmd()()
	next, _ := m.Update(msg)
	view := next.(Model).View()
	assert.Contains(t, view, "Error:")
	assert.Contains(t, view, "no input device")
	assert.Contains(t, view, "State: idle")
}

func TestModelPractice(t *testing.T) {
	exercise, err := practice.New([]int{71}, 25)
	require.NoError(t, err)

	m, d := newTestModel(t, stubSource{}, exercise)
	assert.Contains(t, m.View(), "Play: B4  (0/1)")

	require.NoError(t, d.Start(context.Background()))
	m = runFrames(m, time.Unix(0, 0), 12, 10*time.Millisecond)

	assert.True(t, exercise.Done())
	assert.Contains(t, m.View(), "finished!")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = next.(Model)
	assert.False(t, exercise.Done())
}

func TestCentsMeter(t *testing.T) {
	centre := centsMeter(0)
	assert.Contains(t, centre, "+0¢")
	assert.Equal(t, strings.Index(centre, "●"), strings.Index(centsMeter(4), "●"))

	assert.Contains(t, centsMeter(-80), "-50¢")
	assert.Contains(t, centsMeter(73), "+50¢")
	assert.Less(t, strings.Index(centsMeter(-40), "●"), strings.Index(centre, "●"))
}

func TestRenderNote(t *testing.T) {
	assert.Contains(t, renderNote("B", 4), "B4")

	sharp := renderNote("F#", 5)
	assert.Contains(t, sharp, "F")
	assert.Contains(t, sharp, "#5")
	assert.Equal(t, "C", getNextNote("B"))
}

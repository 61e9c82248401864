package pitch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyToMIDI(t *testing.T) {
	tests := []struct {
		name        string
		freq        float64
		calibration int
		midi        int
		cents       int
	}{
		{"a4", 440, 0, 69, 0},
		{"middle_c", 261.6256, 0, 60, 0},
		{"bb3", 233.0819, 0, 58, 0},
		{"sharp_a4", 445, 0, 69, 20},
		{"flat_a4", 435, 0, 69, -20},
		{"raised_reference", 440, 100, 68, 0},
		{"lowered_reference", 440, -100, 70, 0},
		{"a442", 442, 8, 69, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			midi, cents := FrequencyToMIDI(tt.freq, tt.calibration)
			assert.Equal(t, tt.midi, midi)
			assert.Equal(t, tt.cents, cents)
		})
	}
}

func TestFrequencyToMIDIMonotonic(t *testing.T) {
	lastMIDI := 0
	for freq := 50.0; freq < 2000; freq *= 1.001 {
		midi, cents := FrequencyToMIDI(freq, 0)
		require.GreaterOrEqual(t, midi, lastMIDI, "freq %.3f", freq)
		require.GreaterOrEqual(t, cents, -50)
		require.LessOrEqual(t, cents, 50)
		lastMIDI = midi
	}
}

func TestMIDIToFrequencyRoundTrip(t *testing.T) {
	for midi := 36; midi <= 96; midi++ {
		got, cents := FrequencyToMIDI(MIDIToFrequency(midi, 0), 0)
		assert.Equal(t, midi, got)
		assert.Zero(t, cents)
	}
}

func TestNoteNameAndOctave(t *testing.T) {
	tests := []struct {
		midi   int
		name   string
		octave int
	}{
		{0, "C", -1},
		{21, "A", 0},
		{59, "B", 3},
		{60, "C", 4},
		{69, "A", 4},
		{71, "B", 4},
		{70, "A#", 4},
		{-1, "B", -2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.name, NoteName(tt.midi), "midi %d", tt.midi)
		assert.Equal(t, tt.octave, Octave(tt.midi), "midi %d", tt.midi)
	}
}

func TestTranspose(t *testing.T) {
	for m := 0; m < 128; m++ {
		assert.Equal(t, m+2, Transpose(m))
		assert.Equal(t, m+2, NewPitchData(440, m, 0, 1).WrittenMIDI)
	}
}

func TestNewPitchData(t *testing.T) {
	p := NewPitchData(440, 69, -3, 0.7)

	assert.Equal(t, "A", p.ConcertNote)
	assert.Equal(t, 4, p.ConcertOctave)
	assert.Equal(t, "B", p.WrittenNote)
	assert.Equal(t, 4, p.WrittenOctave)
	assert.Equal(t, 71, p.WrittenMIDI)
	assert.Equal(t, 69, p.ConcertMIDI())
	assert.Equal(t, -3, p.Cents)
	assert.Equal(t, "B4", p.Written())
	assert.Equal(t, "A4", p.Concert())

	// Bb3 concert crosses into the next octave written
	p = NewPitchData(466.16, 70, 0, 1)
	assert.Equal(t, "C5", p.Written())
}

func TestParseNote(t *testing.T) {
	tests := []struct {
		in        string
		midi      int
		canonical string
	}{
		{"C4", 60, "C4"},
		{"c4", 60, "C4"},
		{"F#3", 54, "F#3"},
		{"Bb4", 70, "A#4"},
		{"bb4", 70, "A#4"},
		{"Eb5", 75, "D#5"},
		{" G4 ", 67, "G4"},
		{"C-1", 0, "C-1"},
	}

	for _, tt := range tests {
		got, err := ParseNote(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.midi, got, tt.in)
		assert.Equal(t, tt.canonical, FormatNote(got))
	}

	for _, bad := range []string{"", "H4", "C", "Cb4", "C#x", "4"} {
		_, err := ParseNote(bad)
		assert.True(t, errors.Is(err, ErrUnknownNote), "input %q", bad)
	}
}

package pitch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownNote is returned by ParseNote for unrecognised note names.
var ErrUnknownNote = errors.New("unknown note name")

const (
	// A4Frequency is the uncalibrated concert A reference.
	A4Frequency = 440.0

	// A4MIDI is the MIDI number of concert A4.
	A4MIDI = 69

	// TrumpetTransposition is the written-minus-concert interval of a Bb trumpet.
	TrumpetTransposition = 2
)

// NoteNames lists the chromatic pitch classes starting at C.
var NoteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatNames = map[string]string{
	"Db": "C#",
	"Eb": "D#",
	"Gb": "F#",
	"Ab": "G#",
	"Bb": "A#",
}

// ReferenceA4 returns the A4 frequency shifted by calibrationCents.
func ReferenceA4(calibrationCents int) float64 {
	return A4Frequency * math.Pow(2, float64(calibrationCents)/1200)
}

// FrequencyToMIDI maps a frequency to the nearest equal-tempered MIDI note
// and the signed deviation from it in cents. freq must be positive.
func FrequencyToMIDI(freq float64, calibrationCents int) (midi, cents int) {
	semitones := 12*math.Log2(freq/ReferenceA4(calibrationCents)) + A4MIDI
	nearest := roundHalfUp(semitones)
	return int(nearest), int(roundHalfUp((semitones - nearest) * 100))
}

// MIDIToFrequency is the inverse of FrequencyToMIDI for whole notes.
func MIDIToFrequency(midi, calibrationCents int) float64 {
	return ReferenceA4(calibrationCents) * math.Pow(2, float64(midi-A4MIDI)/12)
}

// roundHalfUp rounds ties towards positive infinity so that cents readings
// stay symmetric around a note boundary.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// NoteName returns the pitch-class name of a MIDI note.
func NoteName(midi int) string {
	return NoteNames[((midi%12)+12)%12]
}

// Octave returns the scientific-pitch octave of a MIDI note (60 is C4).
func Octave(midi int) int {
	return floorDiv(midi, 12) - 1
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Transpose converts a concert MIDI note to Bb trumpet written pitch.
func Transpose(concertMIDI int) int {
	return concertMIDI + TrumpetTransposition
}

// FormatNote renders a MIDI note as name and octave, e.g. "B4".
func FormatNote(midi int) string {
	return fmt.Sprintf("%s%d", NoteName(midi), Octave(midi))
}

// ParseNote parses names such as "C4", "F#3" or "Bb4" into a MIDI number.
func ParseNote(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNote, s)
	}

	name := strings.ToUpper(s[:1])
	rest := s[1:]
	if rest[0] == '#' || rest[0] == 'b' {
		name += rest[:1]
		rest = rest[1:]
	}
	if sharp, ok := flatNames[name]; ok {
		name = sharp
	}

	class := -1
	for i, n := range NoteNames {
		if n == name {
			class = i
			break
		}
	}
	if class < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNote, s)
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNote, s)
	}

	return (octave+1)*12 + class, nil
}

// PitchData is a confirmed, stable pitch reading. Values are replaced
// wholesale on every new detection and never mutated.
type PitchData struct {
	ConcertFrequency float64
	ConcertNote      string
	ConcertOctave    int
	WrittenNote      string
	WrittenOctave    int
	WrittenMIDI      int
	Cents            int
	Confidence       float64
}

// NewPitchData builds the reading for a concert MIDI note.
func NewPitchData(freq float64, concertMIDI, cents int, confidence float64) PitchData {
	written := Transpose(concertMIDI)
	return PitchData{
		ConcertFrequency: freq,
		ConcertNote:      NoteName(concertMIDI),
		ConcertOctave:    Octave(concertMIDI),
		WrittenNote:      NoteName(written),
		WrittenOctave:    Octave(written),
		WrittenMIDI:      written,
		Cents:            cents,
		Confidence:       confidence,
	}
}

// ConcertMIDI recovers the concert MIDI number.
func (p PitchData) ConcertMIDI() int {
	return p.WrittenMIDI - TrumpetTransposition
}

// Written returns the written note with octave, e.g. "B4".
func (p PitchData) Written() string {
	return fmt.Sprintf("%s%d", p.WrittenNote, p.WrittenOctave)
}

// Concert returns the concert note with octave, e.g. "A4".
func (p PitchData) Concert() string {
	return fmt.Sprintf("%s%d", p.ConcertNote, p.ConcertOctave)
}

package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xlemi/trumpetstar/internal/detector"
	"github.com/0xlemi/trumpetstar/internal/pitch"
	"github.com/0xlemi/trumpetstar/internal/practice"
)

// meterWidth is the number of cells in the cents meter, centre included.
const meterWidth = 21

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5555"))

	inTuneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF00"))

	offTuneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFA500"))

	// Note colors
	noteColors = map[string]string{
		"C": "#E8D6B0", // Beige
		"D": "#A020F0", // Purple
		"E": "#FFFF00", // Yellow
		"F": "#FFA500", // Orange
		"G": "#00FF00", // Green
		"A": "#FF0000", // Red
		"B": "#0000FF", // Blue
	}
)

// getNoteStyle returns the block style for a natural note.
func getNoteStyle(noteName string) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(noteColors[noteName])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(2, 4).
		MarginBottom(1)
}

// getNextNote returns the natural above note, for sharp note colors.
func getNextNote(note string) string {
	switch note {
	case "C":
		return "D"
	case "D":
		return "E"
	case "E":
		return "F"
	case "F":
		return "G"
	case "G":
		return "A"
	case "A":
		return "B"
	default:
		return "C"
	}
}

// FrameMsg is one tick of the render clock.
type FrameMsg time.Time

// startedMsg reports the outcome of an asynchronous Start.
type startedMsg struct{ err error }

// feedback is shared between the model copies bubbletea passes around and
// the detector listener, which runs inside Update.
type feedback struct {
	result    practice.Result
	hasResult bool
}

// Model represents the UI state
type Model struct {
	ctx      context.Context
	detector *detector.Detector
	frames   *detector.FrameQueue
	exercise *practice.Exercise
	interval time.Duration
	feedback *feedback

	current    pitch.PitchData
	hasCurrent bool
	state      detector.State
	errMsg     string
	width      int
	height     int
}

// NewModel creates a UI model. The detector must have been created with
// frames as its scheduler so analysis runs on the render clock. exercise
// may be nil.
func NewModel(ctx context.Context, d *detector.Detector, frames *detector.FrameQueue, exercise *practice.Exercise, fps int) Model {
	if fps <= 0 {
		fps = detector.DefaultFPS
	}

	fb := &feedback{}
	if exercise != nil {
		d.OnPitchDetected(func(p pitch.PitchData) {
			fb.result = exercise.Observe(p)
			fb.hasResult = true
		})
	}

	return Model{
		ctx:      ctx,
		detector: d,
		frames:   frames,
		exercise: exercise,
		interval: time.Second / time.Duration(fps),
		feedback: fb,
	}
}

func (m Model) frameCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.detector.Start(m.ctx)}
	}
}

// Init starts listening and the frame clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), m.frameCmd())
}

// Update updates the UI model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.detector.Stop()
			return m, tea.Quit
		case " ":
			if m.detector.IsListening() {
				m.detector.Stop()
				m.sync()
				return m, nil
			}
			return m, m.startCmd()
		case "r":
			if m.exercise != nil {
				m.exercise.Reset()
				m.feedback.hasResult = false
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case startedMsg:
		m.sync()

	case FrameMsg:
		m.frames.Fire(time.Time(msg))
		m.sync()
		return m, m.frameCmd()
	}

	return m, nil
}

// sync copies the detector's published state into the model.
func (m *Model) sync() {
	m.current, m.hasCurrent = m.detector.PitchData()
	m.state = m.detector.State()
	m.errMsg = m.detector.Err()
}

// renderNote draws a note name and octave as a coloured block.
func renderNote(name string, octave int) string {
	if !strings.HasSuffix(name, "#") {
		return getNoteStyle(name).Render(fmt.Sprintf("%s%d", name, octave))
	}

	// sharps are split between the colours of their neighbours
	baseNote := string(name[0])
	half := func(color string) lipgloss.Style {
		return lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color(color)).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			BorderTop(true).
			BorderBottom(true).
			PaddingTop(2).
			PaddingBottom(2)
	}

	left := half(noteColors[baseNote]).
		BorderLeft(true).
		BorderRight(false).
		PaddingLeft(2).
		PaddingRight(1)
	right := half(noteColors[getNextNote(baseNote)]).
		BorderLeft(false).
		BorderRight(true).
		PaddingLeft(1).
		PaddingRight(2)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		left.Render(baseNote),
		right.Render(fmt.Sprintf("#%d", octave)))
}

// centsMeter renders the tuning deviation as a bar with a marker.
func centsMeter(cents int) string {
	cents = max(-50, min(50, cents))
	pos := (cents + 50) * (meterWidth - 1) / 100

	cells := []rune(strings.Repeat("-", meterWidth))
	cells[meterWidth/2] = '|'
	cells[pos] = '●'

	style := offTuneStyle
	if cents >= -10 && cents <= 10 {
		style = inTuneStyle
	}
	return fmt.Sprintf("flat [%s] sharp  %s", string(cells), style.Render(fmt.Sprintf("%+d¢", cents)))
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Trumpetstar - Pitch Trainer"))
	b.WriteString("\n")

	if m.hasCurrent {
		b.WriteString(renderNote(m.current.WrittenNote, m.current.WrittenOctave))
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("Written (Bb trumpet): %s | Concert: %s %.2f Hz",
			m.current.Written(), m.current.Concert(), m.current.ConcertFrequency)))
		b.WriteString("\n")
		b.WriteString(centsMeter(m.current.Cents))
	} else if m.state != detector.Idle {
		b.WriteString(infoStyle.Render("Listening... play a note"))
	} else {
		b.WriteString(infoStyle.Render("Not listening"))
	}
	b.WriteString("\n\n")

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("Error: " + m.errMsg))
		b.WriteString("\n\n")
	}

	if m.exercise != nil {
		b.WriteString(m.practiceView())
		b.WriteString("\n\n")
	}

	b.WriteString(infoStyle.Render(fmt.Sprintf("State: %s | space start/stop | r restart | q quit", m.state)))

	return b.String()
}

func (m Model) practiceView() string {
	done, total := m.exercise.Progress()
	score := m.exercise.Score()

	target := "finished!"
	if midi, ok := m.exercise.Current(); ok {
		target = pitch.FormatNote(midi)
	}

	line := fmt.Sprintf("Play: %s  (%d/%d)  hits %d  misses %d", target, done, total, score.Hits, score.Misses)
	if !m.feedback.hasResult {
		return infoStyle.Render(line)
	}

	switch m.feedback.result.Outcome {
	case practice.Hit:
		line += "  " + inTuneStyle.Render("✓ "+pitch.FormatNote(m.feedback.result.Target))
	case practice.OutOfTune:
		line += "  " + offTuneStyle.Render(fmt.Sprintf("tune it: %+d¢", m.feedback.result.Cents))
	case practice.Miss:
		line += "  " + errorStyle.Render("✗ "+pitch.FormatNote(m.feedback.result.Played))
	}
	return infoStyle.Render(line)
}

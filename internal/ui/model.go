package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xlemi/tunecoach/internal/engine"
	"github.com/0xlemi/tunecoach/internal/onset"
	"github.com/0xlemi/tunecoach/internal/pitch"
)

// Constants for UI behavior
const (
	// How long a note must be detected continuously before it is shown as stable
	noteStabilityThreshold = 300 * time.Millisecond

	// How long a note stays on screen after the last detection
	noteDisplayDuration = 500 * time.Millisecond

	// How long the onset indicator stays lit
	onsetFlashDuration = 150 * time.Millisecond

	tickInterval = 100 * time.Millisecond
	gaugeWidth   = 41
	waveWidth    = 64
)

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

	matchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF00"))

	missStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	warnStyle = lipgloss.NewStyle().
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

	sparkLevels = []rune("▁▂▃▄▅▆▇█")
)

// Returns a style for a natural note
func getNoteStyle(class string) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(noteColors[class])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(2, 4).
		MarginBottom(1)
}

// Get the next natural note (for sharp note colors)
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

// TickMsg represents a timer tick
type TickMsg time.Time

// Model renders engine events. It receives them as messages through
// tea.Program.Send.
type Model struct {
	tier   string
	target *pitch.Note

	current        *engine.PitchDetected
	stable         *engine.PitchDetected
	candidate      string        // note name being timed for stability
	candidateSince time.Duration // session time the candidate first appeared
	lastPitch      time.Time     // wall time of the last detection

	meter     *onset.Meter
	lastOnset time.Time

	wave []float32

	stalled  bool
	endedErr error
	ended    bool

	now    func() time.Time
	width  int
	height int
}

// NewModel creates a model. target may be nil.
func NewModel(tier engine.Tier, target *pitch.Note) Model {
	return Model{
		tier:   tier.String(),
		target: target,
		meter:  onset.NewMeter(16),
		now:    time.Now,
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Init initializes the UI model
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update updates the UI model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.meter.Reset()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.current != nil && m.now().Sub(m.lastPitch) > noteDisplayDuration {
			m.current, m.stable, m.candidate = nil, nil, ""
		}
		return m, tick()

	case engine.PitchDetected:
		m.observePitch(msg)

	case engine.OnsetDetected:
		m.meter.Add(onset.Event{At: msg.At})
		m.lastOnset = m.now()

	case engine.SamplesBatch:
		m.wave = msg.Samples

	case engine.StreamStalled:
		m.stalled = true

	case engine.StreamRecovered:
		m.stalled = false

	case engine.CaptureEnded:
		m.ended = true
		m.endedErr = msg.Err
	}

	return m, nil
}

// observePitch promotes a note to stable once it has been heard continuously
// for noteStabilityThreshold.
func (m *Model) observePitch(p engine.PitchDetected) {
	m.current = &p
	m.lastPitch = m.now()

	if p.Note.Name != m.candidate {
		m.candidate = p.Note.Name
		m.candidateSince = p.At
	}
	if p.At-m.candidateSince >= noteStabilityThreshold || (m.stable != nil && m.stable.Note.Name == p.Note.Name) {
		m.stable = &p
	}
}

// View renders the UI
func (m Model) View() string {
	s := titleStyle.Render(fmt.Sprintf("TuneCoach - %s tier", m.tier))
	s += "\n"

	if m.target != nil {
		s += infoStyle.Render("Target: "+m.target.Name) + "\n\n"
	}

	// Prefer the stable note to avoid flicker between neighbours
	shown := m.stable
	if shown == nil {
		shown = m.current
	}

	if shown != nil {
		s += renderNote(shown.Note) + "\n"
		s += infoStyle.Render(fmt.Sprintf("Frequency: %.2f Hz | Cents: %+.1f | Confidence: %.2f",
			shown.Frequency, shown.CentsOff, shown.Confidence))
		s += "\n" + gauge(shown.CentsOff) + "\n"

		if m.target != nil {
			if shown.Matches(*m.target) {
				s += matchStyle.Render("✔ match")
			} else {
				s += missStyle.Render(fmt.Sprintf("✘ %+.0f cents from %s", pitch.Cents(shown.Frequency, m.target.Frequency), m.target.Name))
			}
			s += "\n"
		}
	} else {
		s += infoStyle.Render("Listening for audio...") + "\n"
	}

	s += "\n" + m.rhythmLine() + "\n"
	if len(m.wave) > 0 {
		s += infoStyle.Render(sparkline(m.wave, waveWidth)) + "\n"
	}

	switch {
	case m.ended && m.endedErr != nil:
		s += "\n" + warnStyle.Render("Capture ended: "+m.endedErr.Error())
	case m.ended:
		s += "\n" + warnStyle.Render("Capture ended")
	case m.stalled:
		s += "\n" + warnStyle.Render("No audio arriving from the input device")
	}

	s += "\n\n"
	s += infoStyle.Render("Press r to reset timing, q to quit")

	return s
}

func (m Model) rhythmLine() string {
	st := m.meter.Stats()
	flash := "○"
	if !m.lastOnset.IsZero() && m.now().Sub(m.lastOnset) < onsetFlashDuration {
		flash = matchStyle.Render("●")
	}
	line := fmt.Sprintf("%s onsets: %d", flash, st.Count)
	if st.MeanInterval > 0 {
		line += fmt.Sprintf(" | interval: %dms | %.0f bpm | jitter: %dms",
			st.MeanInterval.Milliseconds(), st.BPM(), st.Jitter.Milliseconds())
	}
	return line
}

// renderNote draws the note box; sharps are split between the colors of the
// two neighbouring naturals.
func renderNote(n pitch.Note) string {
	if !strings.HasSuffix(n.Class, "#") {
		return getNoteStyle(n.Class).Render(n.Name)
	}

	base := n.Class[:1]
	next := getNextNote(base)

	leftStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(noteColors[base])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		BorderLeft(true).
		BorderTop(true).
		BorderBottom(true).
		BorderRight(false).
		PaddingLeft(2).
		PaddingRight(1).
		PaddingTop(2).
		PaddingBottom(2)

	rightStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(noteColors[next])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		BorderLeft(false).
		BorderTop(true).
		BorderBottom(true).
		BorderRight(true).
		PaddingLeft(1).
		PaddingRight(2).
		PaddingTop(2).
		PaddingBottom(2)

	return leftStyle.Render(base) + rightStyle.Render(n.Name[1:])
}

// gauge draws a needle over [-50, +50] cents.
func gauge(cents float64) string {
	half := gaugeWidth / 2
	pos := half + int(math.Round(cents/50*float64(half)))
	pos = max(0, min(gaugeWidth-1, pos))

	cells := []rune(strings.Repeat("─", gaugeWidth))
	cells[half] = '┼'
	cells[pos] = '▲'

	style := missStyle
	if math.Abs(cents) < pitch.MatchTolerance {
		style = matchStyle
	}
	return "♭ " + style.Render(string(cells)) + " ♯"
}

// sparkline renders the peak magnitude of width equal slices of samples.
func sparkline(samples []float32, width int) string {
	if len(samples) == 0 || width <= 0 {
		return ""
	}
	width = min(width, len(samples))
	per := len(samples) / width

	var b strings.Builder
	for i := 0; i < width; i++ {
		peak := float32(0)
		for _, v := range samples[i*per : (i+1)*per] {
			if v < 0 {
				v = -v
			}
			peak = max(peak, v)
		}
		level := int(peak * float32(len(sparkLevels)))
		level = max(0, min(len(sparkLevels)-1, level))
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

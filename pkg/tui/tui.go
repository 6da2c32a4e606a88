// Package tui provides a terminal monitor for a running dfam2cv engine
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/dfam2cv/pkg/dac"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/sequencer"
	"github.com/james-see/dfam2cv/pkg/transport"
)

// RefreshInterval is how often the screen polls the engine
const RefreshInterval = 50 * time.Millisecond

// Moog-inspired color scheme
var (
	moogOrange = lipgloss.Color("#FF8C1A")
	creamWhite = lipgloss.Color("#F2E8CF")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(moogOrange).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(creamWhite).
			Bold(true)

	stepStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Padding(0, 1)

	currentStepStyle = lipgloss.NewStyle().
				Foreground(darkGray).
				Background(moogOrange).
				Bold(true).
				Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(moogOrange).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(moogOrange).
			Padding(1, 2)
)

// Backend is what the monitor reads and drives
type Backend interface {
	State(ctx context.Context) (engine.State, error)
	Outputs() hw.MonitorState
	Resync(ctx context.Context) error
	Panic(ctx context.Context) error
	Play(ctx context.Context, path string) (int, error)
	// ToggleModeSwitch flips the mode switch and returns the new position
	ToggleModeSwitch() (clockControlled bool, ok bool)
	PressSync() bool
}

// RunnerBackend drives an engine through its Runner. Controls may be nil
// when the front panel is not operable.
type RunnerBackend struct {
	Runner   *engine.Runner
	Monitor  *hw.Monitor
	Controls *hw.Switches
}

func (b RunnerBackend) State(ctx context.Context) (engine.State, error) {
	var st engine.State
	err := b.Runner.Exec(ctx, func(e *engine.Engine) { st = e.State() })
	return st, err
}

func (b RunnerBackend) Outputs() hw.MonitorState {
	if b.Monitor == nil {
		return hw.MonitorState{}
	}
	return b.Monitor.Snapshot()
}

func (b RunnerBackend) Resync(ctx context.Context) error {
	return b.Runner.Exec(ctx, func(e *engine.Engine) { e.AdvanceToBeginning() })
}

func (b RunnerBackend) Panic(ctx context.Context) error {
	return b.Runner.Exec(ctx, func(e *engine.Engine) { e.AllNotesOff() })
}

func (b RunnerBackend) Play(ctx context.Context, path string) (int, error) {
	events, err := transport.LoadSMFFile(path, transport.SMFOptions{Clock: true})
	if err != nil {
		return 0, err
	}
	return transport.Play(ctx, events, b.Runner.Submit)
}

func (b RunnerBackend) ToggleModeSwitch() (bool, bool) {
	if b.Controls == nil {
		return false, false
	}
	pos := !b.Controls.ModeSwitch()
	b.Controls.SetModeSwitch(pos)
	return pos, true
}

func (b RunnerBackend) PressSync() bool {
	if b.Controls == nil {
		return false
	}
	b.Controls.PressSync()
	return true
}

// State represents the current TUI screen
type State int

const (
	StateMonitor State = iota
	StateFilePicker
)

// Model represents the TUI model
type Model struct {
	backend    Backend
	ctx        context.Context
	state      State
	filePicker filepicker.Model
	spinner    spinner.Model

	engine  engine.State
	outputs hw.MonitorState
	playing string
	status  string
	err     error
	width   int
	height  int
}

type tickMsg time.Time

type stateMsg struct {
	engine  engine.State
	outputs hw.MonitorState
	err     error
}

type playDoneMsg struct {
	path   string
	queued int
	err    error
}

type actionDoneMsg struct {
	status string
	err    error
}

// New creates a new TUI model. ctx bounds playback and engine calls.
func New(ctx context.Context, b Backend) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(moogOrange)

	return Model{
		backend:    b,
		ctx:        ctx,
		state:      StateMonitor,
		filePicker: fp,
		spinner:    s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, time.Second)
		defer cancel()
		st, err := m.backend.State(ctx)
		return stateMsg{engine: st, outputs: m.backend.Outputs(), err: err}
	}
}

func (m Model) action(status string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, time.Second)
		defer cancel()
		return actionDoneMsg{status: status, err: fn(ctx)}
	}
}

func (m Model) play(path string) tea.Cmd {
	return func() tea.Msg {
		n, err := m.backend.Play(m.ctx, path)
		return playDoneMsg{path: path, queued: n, err: err}
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, m.refresh()
	case stateMsg:
		m.engine = msg.engine
		m.outputs = msg.outputs
		if msg.err != nil {
			m.err = msg.err
		}
		return m, tick()
	case actionDoneMsg:
		m.status, m.err = msg.status, msg.err
		return m, nil
	case playDoneMsg:
		m.playing = ""
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("played %s (%d events)", filepath.Base(msg.path), msg.queued)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == StateFilePicker {
		return m.updateFilePicker(msg)
	}
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		return m.updateMonitor(keyMsg)
	}
	return m, nil
}

func (m Model) updateFilePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			m.state = StateMonitor
			return m, nil
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)
	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.state = StateMonitor
		m.playing = path
		m.status = ""
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.play(path))
	}
	return m, cmd
}

func (m Model) updateMonitor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		return m, m.action("sequencer resynced", m.backend.Resync)
	case "p", " ":
		return m, m.action("all notes off", m.backend.Panic)
	case "m":
		pos, ok := m.backend.ToggleModeSwitch()
		switch {
		case !ok:
			m.status = "mode switch not available"
		case pos:
			m.status = "mode switch: clock"
		default:
			m.status = "mode switch: keyboard"
		}
		return m, nil
	case "s":
		if m.backend.PressSync() {
			m.status = "sync pressed"
		} else {
			m.status = "sync button not available"
		}
		return m, nil
	case "o":
		if m.playing != "" {
			return m, nil
		}
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMonitor:
		s.WriteString(m.viewMonitor())
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("r: resync • p: all notes off • m: mode switch • s: sync • o: play file • q: quit"))
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	}

	return s.String()
}

func (m Model) viewMonitor() string {
	var s strings.Builder
	st := m.engine

	s.WriteString(titleStyle.Render(" DFAM2CV "))
	s.WriteString("\n\n")

	seqMode := "keyboard"
	if st.Sequencer.ClockControlled {
		seqMode = "clock"
	}
	s.WriteString(row("mode", fmt.Sprintf("%s / %s", st.Mode, seqMode)))
	bpm := "--"
	if st.BPM > 0 {
		bpm = fmt.Sprintf("%.1f", st.BPM)
	}
	s.WriteString(row("tempo", fmt.Sprintf("%s bpm  1/%d", bpm, st.Sequencer.Division)))
	s.WriteString("\n")

	for i, lane := range st.Lanes {
		s.WriteString(m.viewLane(hw.Channel(i), lane))
	}
	s.WriteString("\n")
	s.WriteString(viewSteps(st.Sequencer.Step))
	s.WriteString("\n")
	s.WriteString(row("leds", fmt.Sprintf("mode %s  clock %s  error %s",
		lamp(m.outputs.LEDs[hw.LEDMode.String()]),
		lamp(m.outputs.LEDs[hw.LEDClock.String()]),
		lamp(m.outputs.LEDs[hw.LEDError.String()]))))

	switch {
	case m.playing != "":
		s.WriteString(statusStyle.Render(fmt.Sprintf("%s playing %s", m.spinner.View(), filepath.Base(m.playing))))
	case m.err != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	case m.status != "":
		s.WriteString(statusStyle.Render(m.status))
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewLane(ch hw.Channel, lane engine.LaneState) string {
	out := m.outputs.Lanes[ch]
	note := "--"
	if lane.HasOutput {
		note = NoteName(lane.Note)
	}
	flags := ""
	if lane.Sliding {
		flags += " glide"
	}
	if lane.Vibrato != 0 {
		flags += " vib"
	}
	return row("cv "+ch.String(), fmt.Sprintf("%-4s %s %4d  gate %s  vel %s%s",
		note, meter(int(lane.Code), dac.MaxCode, 16), lane.Code, lamp(out.Gate), meter(int(out.Velocity), 255, 8), flags))
}

func viewSteps(current uint8) string {
	var cells []string
	for i := uint8(1); i <= sequencer.Steps; i++ {
		style := stepStyle
		if i == current {
			style = currentStepStyle
		}
		cells = append(cells, style.Render(fmt.Sprintf("%d", i)))
	}
	return labelStyle.Render("step") + lipgloss.JoinHorizontal(lipgloss.Top, cells...) + "\n"
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to monitor"))

	return s.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func lamp(on bool) string {
	if on {
		return lipgloss.NewStyle().Foreground(moogOrange).Render("●")
	}
	return "○"
}

// meter draws value out of max as a bar of width cells
func meter(value, max, width int) string {
	filled := value * width / max
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName formats a MIDI note number, with note 60 as C4
func NoteName(note uint8) string {
	return fmt.Sprintf("%s%d", noteNames[note%12], int(note)/12-1)
}

func asciiLogo() string {
	logo := `
  ____  _____ _    __  __ ____   ______     __
 |  _ \|  ___/ \  |  \/  |___ \ / ___\ \   / /
 | | | | |_ / _ \ | |\/| | __) | |    \ \ / / 
 | |_| |  _/ ___ \| |  | |/ __/| |___  \ V /  
 |____/|_|/_/   \_\_|  |_|_____|\____|  \_/   
`
	return lipgloss.NewStyle().Foreground(moogOrange).Render(logo)
}

// Run starts the TUI application
func Run(ctx context.Context, b Backend) error {
	p := tea.NewProgram(New(ctx, b), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

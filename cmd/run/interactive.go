package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-lens/config"
	"github.com/wippyai/wasm-lens/host"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	controlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxSteps bounds the pipeline steps run for one submitted record.
const maxSteps = 64

// historySize is the number of steps kept on screen.
const historySize = 12

// feed is the upstream of the interactive pipeline: the record typed last,
// a skip while nothing is pending, and end of stream once closed.
type feed struct {
	pending *record.Record
	closed  bool
}

func (f *feed) Next() (host.Control, error) {
	if f.closed {
		return stream.EndOfStream[*record.Record](), nil
	}
	if f.pending == nil {
		return stream.Skip[*record.Record](), nil
	}
	rec := f.pending
	f.pending = nil
	return stream.Some(rec), nil
}

type step struct {
	err   error
	input string
	ctl   host.Control
}

type interactiveModel struct {
	err     error
	lens    *config.Lens
	pipe    *pipeline
	feed    *feed
	src     host.Source
	input   textinput.Model
	history []step
	busy    bool
	done    bool
}

func newInteractiveModel(lens *config.Lens) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `{"name":"value"}`
	ti.Prompt = "record: "
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{lens: lens, input: ti, busy: true}
}

type openedMsg struct {
	err  error
	pipe *pipeline
}

type stepsMsg struct {
	steps []step
	done  bool
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.open, textinput.Blink)
}

func (m *interactiveModel) open() tea.Msg {
	pipe, err := openPipeline(context.Background(), m.lens)
	return openedMsg{pipe: pipe, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.pipe != nil {
				m.pipe.Close(context.Background())
			}
			return m, tea.Quit

		case "enter":
			if m.busy || m.done {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			rec, err := record.Parse([]byte(text))
			if err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.busy = true
			m.input.SetValue("")
			return m, m.push(text, rec)

		case "ctrl+d":
			if m.busy || m.done {
				return m, nil
			}
			m.busy = true
			return m, m.finish
		}

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.pipe = msg.pipe
		m.feed = &feed{}
		m.src = m.pipe.Stream(context.Background(), m.feed)
		m.busy = false
		return m, nil

	case stepsMsg:
		m.history = append(m.history, msg.steps...)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
		m.done = msg.done
		m.busy = false
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// push runs the pipeline until the submitted record has been consumed.
// Stages that emit records of their own produce extra steps first.
func (m *interactiveModel) push(text string, rec *record.Record) tea.Cmd {
	return func() tea.Msg {
		m.feed.pending = rec
		var out stepsMsg
		for i := 0; i < maxSteps; i++ {
			ctl, err := m.src.Next()
			s := step{ctl: ctl, err: err}
			if m.feed.pending == nil {
				s.input = text
			}
			out.steps = append(out.steps, s)
			if err != nil || ctl.IsEndOfStream() {
				out.done = true
				return out
			}
			if m.feed.pending == nil {
				return out
			}
		}
		return out
	}
}

// finish ends the upstream and drains the pipeline.
func (m *interactiveModel) finish() tea.Msg {
	m.feed.closed = true
	out := stepsMsg{done: true}
	for i := 0; i < maxSteps; i++ {
		ctl, err := m.src.Next()
		out.steps = append(out.steps, step{ctl: ctl, err: err})
		if err != nil || ctl.IsEndOfStream() {
			break
		}
	}
	return out
}

func (m *interactiveModel) View() string {
	if m.pipe == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
		}
		return "Loading lenses..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Lens Runner"))
	b.WriteString("\n\n")
	for i, mod := range m.lens.Modules {
		dir := "forward"
		if mod.Inverse {
			dir = "inverse"
		}
		b.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, stageStyle.Render(mod.Path), helpStyle.Render(dir)))
	}
	b.WriteString("\n")

	for _, s := range m.history {
		if s.input != "" {
			b.WriteString(inputStyle.Render("> " + s.input))
			b.WriteString("\n")
		}
		b.WriteString("  ")
		b.WriteString(formatStep(s))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(helpStyle.Render("stream ended • esc quit"))
		return b.String()
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send record • ctrl+d end stream • esc quit"))
	return b.String()
}

func formatStep(s step) string {
	if s.err != nil {
		return errorStyle.Render("error: " + s.err.Error())
	}
	if rec, ok := s.ctl.Value(); ok {
		return resultStyle.Render(rec.String())
	}
	return controlStyle.Render(s.ctl.String())
}

func runInteractive(lens *config.Lens) error {
	p := tea.NewProgram(newInteractiveModel(lens), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

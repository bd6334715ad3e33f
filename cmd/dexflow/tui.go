// The explorer TUI steps a flow.Engine one tick at a time and lets an
// analyst watch branches fork, taint, and finish, then run a signature
// query over whatever calls got resolved.
package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dr8co/dexflow/flow"
	"github.com/dr8co/dexflow/query"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	finishedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	taintedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8700")).
			Bold(true)

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

// Options is the explorer's knob set, passed down from main rather than
// threaded through globals.
type Options struct {
	NoColor bool
	Debug   bool
}

type autoTickMsg struct{}

type model struct {
	demos       []demo
	cursor      int
	engine      *flow.Engine
	activeDemo  *demo
	ticks       int
	autoRunning bool
	spinner     spinner.Model
	queryInput  textinput.Model
	querying    bool
	queryErr    error
	queryHits   []query.CallMatch
	options     Options
}

func initialModel(options Options) model {
	ti := textinput.New()
	ti.Placeholder = "call signature regex, e.g. ->run\\("
	ti.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		demos:      demos(),
		spinner:    s,
		queryInput: ti,
		options:    options,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

func tickAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return autoTickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.autoRunning {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case autoTickMsg:
		if m.autoRunning && m.engine != nil && !m.engine.IsDone() {
			m.engine.Tick()
			m.ticks++
			return m, tickAfter(80 * time.Millisecond)
		}
		m.autoRunning = false
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.querying {
				m.querying = false
				m.queryInput.Blur()
				return m, nil
			}
			return m, tea.Quit
		}

		if m.querying {
			if msg.Type == tea.KeyEnter {
				m.querying = false
				m.queryInput.Blur()
				re, err := regexp.Compile(m.queryInput.Value())
				if err != nil {
					m.queryErr = err
					m.queryHits = nil
					return m, nil
				}
				m.queryErr = nil
				m.queryHits = query.FindAllCallsRegex(m.engine, re)
				return m, nil
			}
			var cmd tea.Cmd
			m.queryInput, cmd = m.queryInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "up", "k":
			if m.engine == nil && m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.engine == nil && m.cursor < len(m.demos)-1 {
				m.cursor++
			}
		case "enter":
			if m.engine == nil {
				d := m.demos[m.cursor]
				m.activeDemo = &d
				m.engine = flow.New(d.Table, d.Registers, d.Symbols, false)
				m.ticks = 0
				m.queryHits = nil
				m.queryErr = nil
			}
		case "n":
			if m.engine != nil && !m.engine.IsDone() {
				m.engine.Tick()
				m.ticks++
			}
		case "a":
			if m.engine != nil && !m.engine.IsDone() && !m.autoRunning {
				m.autoRunning = true
				return m, tickAfter(80 * time.Millisecond)
			}
		case "/":
			if m.engine != nil {
				m.querying = true
				m.queryInput.Focus()
				return m, textinput.Blink
			}
		case "r":
			m.engine = nil
			m.activeDemo = nil
			m.autoRunning = false
			m.queryHits = nil
			m.queryErr = nil
		}
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(m.applyStyle(titleStyle, " dexflow — symbolic instruction-flow explorer "))
	s.WriteString("\n\n")

	if m.engine == nil {
		s.WriteString("Choose a scenario:\n\n")
		for i, d := range m.demos {
			prefix := "  "
			if i == m.cursor {
				prefix = m.applyStyle(cursorStyle, "> ")
			}
			s.WriteString(prefix + d.Name + "\n")
			s.WriteString("    " + m.applyStyle(descStyle, d.Description) + "\n")
		}
		s.WriteString("\n" + m.applyStyle(helpStyle, "↑/↓ select · enter load · q quit"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("scenario: %s (%d ticks)\n\n", m.activeDemo.Name, m.ticks))

	for _, b := range m.engine.GetAllBranches() {
		status := m.applyStyle(liveStyle, "live")
		if b.Finished {
			status = m.applyStyle(finishedStyle, "finished")
		}
		taint := ""
		if b.State.Tainted {
			taint = " " + m.applyStyle(taintedStyle, "TAINTED")
		}
		last := "-"
		if b.State.LastInstruction != nil {
			last = b.State.LastInstruction.String()
		}
		s.WriteString(fmt.Sprintf("  branch %d  pc=%s  %s%s  last=%s\n", b.ID, b.PC, status, taint, last))
	}

	if m.engine.IsDone() {
		s.WriteString("\n" + m.applyStyle(finishedStyle, "engine converged"))
	} else if m.autoRunning {
		s.WriteString("\n" + m.spinner.View() + " auto-running")
	}
	s.WriteString("\n\n")

	if m.querying {
		s.WriteString("search calls by signature: " + m.queryInput.View() + "\n")
	} else if m.queryErr != nil {
		s.WriteString(m.applyStyle(taintedStyle, "bad regex: "+m.queryErr.Error()) + "\n")
	} else if m.queryHits != nil {
		s.WriteString(fmt.Sprintf("%d call site(s) matched:\n", len(m.queryHits)))
		for _, hit := range m.queryHits {
			s.WriteString(fmt.Sprintf("  %s @ %s\n", hit.Call.Signature, hit.PC))
		}
	}

	s.WriteString("\n" + m.applyStyle(helpStyle, "n step · a auto-run · / search calls · r reset · q quit"))
	return s.String()
}

// Start runs the dexflow explorer TUI until the user quits.
func Start(options Options) error {
	p := tea.NewProgram(initialModel(options))
	_, err := p.Run()
	return err
}

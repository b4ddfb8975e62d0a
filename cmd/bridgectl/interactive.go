package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

type modelState int

const (
	stateSelectStep modelState = iota
	stateRename
	stateShowResult
)

type interactiveModel struct {
	err      error
	session  *session
	opts     options
	title    string
	result   string
	steps    []step
	input    textinput.Model
	selected int
	state    modelState
}

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{
		opts:  opts,
		state: stateSelectStep,
	}
}

type openedMsg struct {
	err     error
	session *session
}

type stepResultMsg struct {
	err    error
	title  string
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.open
}

func (m *interactiveModel) open() tea.Msg {
	s, err := openSession(context.Background(), m.opts)
	if err != nil {
		return openedMsg{err: err}
	}
	return openedMsg{session: s}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateRename {
			return m.updateRename(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			if m.session != nil {
				_ = m.session.close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectStep && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectStep && m.selected < len(m.steps)-1 {
				m.selected++
			}

		case "n":
			if m.state == stateSelectStep && m.session != nil {
				m.input = textinput.New()
				m.input.Prompt = "material name: "
				m.input.Placeholder = "polished brass"
				m.input.Width = 40
				m.input.Focus()
				m.state = stateRename
				return m, textinput.Blink
			}

		case "enter":
			switch m.state {
			case stateSelectStep:
				if len(m.steps) > 0 {
					return m, m.runStep(m.steps[m.selected])
				}
			case stateShowResult:
				m.state = stateSelectStep
				m.result = ""
				m.err = nil
			}

		case "esc":
			if m.state == stateShowResult {
				m.state = stateSelectStep
				m.result = ""
				m.err = nil
			}
		}

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.steps = msg.session.steps()

	case stepResultMsg:
		m.title = msg.title
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	return m, nil
}

func (m *interactiveModel) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateSelectStep
		return m, nil
	case "enter":
		name := m.input.Value()
		if name == "" {
			name = m.input.Placeholder
		}
		s := m.session
		return m, func() tea.Msg {
			ctx := context.Background()
			if err := s.mat.SetName(ctx, name); err != nil {
				return stepResultMsg{title: "rename", err: err}
			}
			got, err := s.mat.Name(ctx)
			if err != nil {
				return stepResultMsg{title: "rename", err: err}
			}
			return stepResultMsg{title: "rename", result: fmt.Sprintf("material #%d is now %q", s.mat.Serial(), got)}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) runStep(st step) tea.Cmd {
	return func() tea.Msg {
		result, err := st.run(context.Background())
		return stepResultMsg{title: st.name, result: result, err: err}
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.session == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.session == nil {
		return "Opening " + m.opts.backend + " backend..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Object Bridge"))
	b.WriteString(" ")
	b.WriteString(m.session.backend)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectStep:
		b.WriteString("Select a step to drive:\n\n")
		for i, st := range m.steps {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + st.name))
			} else {
				b.WriteString("  " + stepStyle.Render(st.name))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			panelStyle.Render(m.proxyView()),
			" ",
			panelStyle.Render(m.statsView()),
		))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • n rename material • q quit"))

	case stateRename:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter apply • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", stepStyle.Render(m.title)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) proxyView() string {
	var b strings.Builder
	b.WriteString("Proxies\n")
	rows := m.session.proxies()
	if len(rows) == 0 {
		b.WriteString(helpStyle.Render("(none)"))
	}
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("#%-3d %s %s %s\n", r.serial, kindStyle.Render(r.kind.String()), r.typeName, r.state))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *interactiveModel) statsView() string {
	var b strings.Builder
	b.WriteString("Dispatch\n")
	stats := m.session.stats()
	if len(stats) == 0 {
		b.WriteString(helpStyle.Render("(no calls)"))
	}
	for _, st := range stats {
		line := fmt.Sprintf("%-24s %4d", st.Slot, st.Calls)
		if st.Faults > 0 {
			line += errorStyle.Render(fmt.Sprintf(" !%d", st.Faults))
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

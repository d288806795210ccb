// Package prompt is a small terminal picker used by `synf init`.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned by Select when the user backs out.
var ErrCancelled = errors.New("prompt: cancelled")

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Choose: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "choose"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77")).Bold(true)
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
)

// Model is a single-choice list.
type Model struct {
	title   string
	options []string
	keys    keyMap

	cursor    int
	chosen    int
	cancelled bool
}

// NewModel creates a picker over options with the cursor on initial.
func NewModel(title string, options []string, initial int) Model {
	if initial < 0 || initial >= len(options) {
		initial = 0
	}
	return Model{title: title, options: options, keys: defaultKeyMap(), cursor: initial, chosen: -1}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(km, m.keys.Quit):
		m.cancelled = true
		return m, tea.Quit
	case key.Matches(km, m.keys.Choose):
		m.chosen = m.cursor
		return m, tea.Quit
	case key.Matches(km, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, m.keys.Down):
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.chosen >= 0 {
		return selectedStyle.Render(fmt.Sprintf("%s %s", m.title, m.options[m.chosen])) + "\n"
	}
	if m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	for i, opt := range m.options {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + opt))
		} else {
			b.WriteString(optionStyle.Render("  " + opt))
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(strings.Join([]string{
		m.keys.Up.Help().Key + " " + m.keys.Up.Help().Desc,
		m.keys.Down.Help().Key + " " + m.keys.Down.Help().Desc,
		m.keys.Choose.Help().Key + " " + m.keys.Choose.Help().Desc,
		m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc,
	}, " • ")))
	return b.String()
}

// Choice returns the chosen index, or false if nothing was chosen.
func (m Model) Choice() (int, bool) {
	return m.chosen, m.chosen >= 0
}

// Select shows the picker on the given terminal streams and returns the
// chosen index.
func Select(in io.Reader, out io.Writer, title string, options []string, initial int) (int, error) {
	p := tea.NewProgram(NewModel(title, options, initial), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("failed to run prompt: %w", err)
	}
	idx, ok := final.(Model).Choice()
	if !ok {
		return 0, ErrCancelled
	}
	return idx, nil
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type progressModel struct {
	title    string
	events   <-chan Event
	spinner  spinner.Model
	prog     progress.Model
	items    []testItem
	index    map[string]int
	sessionL string
	width    int
	done     bool
}

type testItem struct {
	name   string
	status string
	frac   float64
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model rendering test progress from
// events until the channel is closed.
func NewProgressModel(title string, tests []string, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]testItem, 0, len(tests))
	index := make(map[string]int, len(tests))
	for i, name := range tests {
		items = append(items, testItem{name: name, status: "queued"})
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	header := m.title
	if m.sessionL != "" {
		header = fmt.Sprintf("%s (%s)", header, m.sessionL)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7")).Render(header))
	b.WriteString("\n\n")

	const statusWidth = 14
	nameWidth := max(m.width-statusWidth-4, 20)
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%14s", item.status))
		b.WriteString("  " + status + " " + truncate(item.name, nameWidth) + "\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev Event) tea.Cmd {
	if ev.Test == "" {
		m.sessionL = string(ev.Stage)
		return nil
	}
	idx, ok := m.index[ev.Test]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	item.status, item.frac = describe(ev)

	total := 0.0
	for _, it := range m.items {
		total += it.frac
	}
	return m.prog.SetPercent(total / float64(len(m.items)))
}

// describe maps an event to a status label and a completion fraction.
func describe(ev Event) (string, float64) {
	switch ev.Stage {
	case StageQueued:
		return "queued", 0
	case StageRun:
		return "running", 0.5
	case StageFuzz:
		if ev.Total == 0 {
			return "fuzzing", 0.1
		}
		frac := float64(ev.Trials) / float64(ev.Total)
		return fmt.Sprintf("fuzz %d/%d", ev.Trials, ev.Total), 0.1 + 0.8*frac
	case StageArtifacts:
		return "artifacts", 0.95
	case StageDone:
		return ev.Status, 1
	default:
		return string(ev.Stage), 0
	}
}

func styleStatus(status string) lipgloss.Style {
	switch {
	case status == "passed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case status == "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case status == "running", status == "artifacts", strings.HasPrefix(status, "fuzz"):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}

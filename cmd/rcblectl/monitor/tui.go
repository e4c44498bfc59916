package monitor

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mdouchement/rcbled"
	"github.com/mdouchement/rcbled/lifecycle"
)

var (
	connected    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd700"))
	disconnected = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
)

type model struct {
	table table.Model
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Vehicle", Width: 20},
		{Title: "State", Width: 30},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case rcbled.Status:
		m.table.SetRows(rows(msg))
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

func rows(st rcbled.Status) []table.Row {
	link := disconnected.Render(st.Connection.String())
	if st.Connection == lifecycle.Connected {
		link = connected.Render(st.Connection.String())
	}

	return []table.Row{
		{"Connection", link},
		{"Motor", fmt.Sprintf("%-8s %5.1f%%", st.Direction, st.Duty)},
		{"Steering", fmt.Sprintf("%+4.0f°", st.Steering)},
		{"Commands", fmt.Sprintf("%d accepted", st.Accepted)},
		{"", fmt.Sprintf("%d rejected", st.Rejected)},
		{"", fmt.Sprintf("%d ignored", st.Ignored)},
		{"Faults", fmt.Sprint(st.Faults)},
		{"Uptime", st.Uptime.Truncate(time.Second).String()},
	}
}

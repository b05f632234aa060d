package tui

import (
	"github.com/charmbracelet/lipgloss"
)

const helpText = "enter: switch  n: new  r: rename  x: remove  /: filter  g: refresh  q: quit"

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
)

var statusStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("235")).
	Foreground(lipgloss.Color("250")).
	Padding(0, 1)

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var content string
	switch m.mode {
	case modeRename:
		prompt := promptStyle.Render("Rename "+m.target.Title()+":") + "\n" +
			m.input.View() + "\n" +
			helpStyle.Render("enter: confirm  esc: cancel")
		content = lipgloss.NewStyle().Padding(1, 2).Render(prompt)
	case modeCreate, modeRemove:
		content = lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
	default:
		content = m.list.View()
	}

	body := lipgloss.NewStyle().Height(m.listHeight()).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left,
		renderStatus(m.status, m.err, m.width),
		body,
		helpStyle.Width(m.width).Render(helpText),
	)
}

func renderStatus(status string, err error, width int) string {
	text := status
	if err != nil {
		text = errorStyle.Render(err.Error())
	}
	if text == "" {
		text = "winvd"
	}
	return statusStyle.Width(width).Render(text)
}

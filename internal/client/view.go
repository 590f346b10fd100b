package client

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"
)

var homeContent = buildHomeContent()

type styles struct {
	title         lipgloss.Style
	statusOnline  lipgloss.Style
	statusOffline lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	logBody       lipgloss.Style
	logBodyError  lipgloss.Style
	help          lipgloss.Style
}

func defaultStyles() styles {
	base := lipgloss.NewStyle()
	return styles{
		title:         base.Foreground(lipgloss.Color("13")).Bold(true),
		statusOnline:  base.Foreground(lipgloss.Color("10")).Bold(true),
		statusOffline: base.Foreground(lipgloss.Color("9")).Bold(true),
		label:         base.Foreground(lipgloss.Color("8")),
		value:         base.Foreground(lipgloss.Color("15")),
		logBody:       base.Foreground(lipgloss.Color("7")),
		logBodyError:  base.Foreground(lipgloss.Color("9")),
		help:          base.Foreground(lipgloss.Color("12")),
	}
}

// View renders the terminal UI.
func (a *App) View() string {
	var b strings.Builder
	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(a.logLineView())
	b.WriteString("\n")
	b.WriteString(a.statusLine())
	return b.String()
}

func (a *App) updateViewportContent() {
	if a.room == "" && len(a.history) == 0 {
		a.viewport.SetContent(homeContent)
		return
	}
	width := a.viewport.Width
	if width <= 0 {
		width = a.width
	}
	content := strings.Join(a.history, "\n")
	if width > 0 {
		content = lipgloss.NewStyle().Width(width).Render(content)
	}
	a.viewport.SetContent(content)
	a.viewport.GotoBottom()
}

func (a *App) resizeViewport() {
	const fixed = 3
	height := a.height - fixed
	if height < 3 {
		height = 3
	}
	a.viewport.Width = a.width
	a.viewport.Height = height
	a.updateViewportContent()
}

func (a *App) logLineView() string {
	if a.logLine == "" {
		return " "
	}
	if a.logErr {
		return a.styles.logBodyError.Render(a.logLine)
	}
	return a.styles.logBody.Render(a.logLine)
}

func (a *App) statusLine() string {
	status := a.styles.statusOffline.Render("offline")
	server := "-"
	if a.session != nil {
		status = a.styles.statusOnline.Render("connected")
	}
	if a.cfg.ServerURL != "" {
		server = a.cfg.ServerURL
	}
	user := "-"
	if a.userID != "" {
		user = a.userID
	}
	room := "-"
	if a.room != "" {
		room = fmt.Sprintf("%s (%d online)", a.room, len(a.online))
	}
	segment := func(label, value string) string {
		return a.styles.label.Render(label+":") + a.styles.value.Render(value)
	}
	return strings.Join([]string{
		a.styles.title.Render("Chatual"),
		segment("Status", status),
		segment("Server", server),
		segment("User", user),
		segment("Room", room),
	}, " | ")
}

func buildHomeContent() string {
	fig := figure.NewFigure("CHATUAL", "standard", true)
	lines := []string{
		fig.String(),
		"/connect [url]      connect to a server",
		"/join <room> [user] enter a room",
		"/leave              leave the current room",
		"/who                list who is online",
		"/ping               round-trip to the server",
		"/quit               exit",
	}
	return strings.Join(lines, "\n")
}

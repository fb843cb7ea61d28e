package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Roles of a chat line
const (
	RoleUser      = "you"
	RoleAssistant = "copilot"
	RoleMarketing = "research"
	RoleError     = "error"
)

// Line is one rendered chat entry.
type Line struct {
	Role    string
	Content string
}

// Chat is the scrolling conversation panel.
type Chat struct {
	viewport viewport.Model
	lines    []Line
}

func NewChat() *Chat {
	vp := viewport.New(0, 0)
	vp.SetContent(DimStyle.Render("Ask the BiteBase copilot about locations, competitors or marketing.") + "\n")
	return &Chat{viewport: vp}
}

func (c *Chat) Update(msg tea.Msg) (*Chat, tea.Cmd) {
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c *Chat) View(width, height int) string {
	c.viewport.Width = width - 4
	c.viewport.Height = height - 2
	return ChatPanelStyle.Width(width - 2).Height(height - 2).Render(c.viewport.View())
}

// Add appends a line and scrolls to it.
func (c *Chat) Add(role, content string) {
	c.lines = append(c.lines, Line{Role: role, Content: content})
	c.render()
	c.viewport.GotoBottom()
}

// Lines returns the conversation so far.
func (c *Chat) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

func (c *Chat) render() {
	var sb strings.Builder
	for _, l := range c.lines {
		var style lipgloss.Style
		switch l.Role {
		case RoleUser:
			style = UserMessageStyle
		case RoleMarketing:
			style = MarketingMessageStyle
		case RoleError:
			style = ErrorMessageStyle
		default:
			style = AssistantMessageStyle
		}
		sb.WriteString(style.Render(l.Role + ": " + l.Content))
		sb.WriteString("\n\n")
	}
	c.viewport.SetContent(sb.String())
}

// Package tui is a terminal chat client for the copilot WebSocket.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/khiwniti/beta-bitebase/internal/channel/webchat"
)

const DefaultTimeout = 90 * time.Second

// Config identifies the conversation the client joins.
type Config struct {
	URL       string
	UserID    string
	SessionID string
	Timeout   time.Duration
}

type replyMsg struct{ reply *Reply }

type errMsg struct{ err error }

// App is the bubbletea model of the chat client.
type App struct {
	width, height int
	cfg           Config
	transport     Transport
	chat          *Chat
	side          *Side
	input         *Input
	help          help.Model
	keys          KeyMap
	pending       bool
	nextHint      int
}

func NewApp(cfg Config, transport Transport) *App {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &App{
		cfg:       cfg,
		transport: transport,
		chat:      NewChat(),
		side:      NewSide(cfg),
		input:     NewInput(),
		help:      help.New(),
		keys:      DefaultKeyMap,
	}
}

// Run starts the client full screen and blocks until the user quits.
func Run(cfg Config, transport Transport) error {
	_, err := tea.NewProgram(NewApp(cfg, transport), tea.WithAltScreen()).Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return a.input.Init()
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.Send):
			return a, a.submit()
		case key.Matches(msg, a.keys.Suggestion):
			a.useSuggestion()
			return a, nil
		case key.Matches(msg, a.keys.Up, a.keys.Down):
			var cmd tea.Cmd
			a.chat, cmd = a.chat.Update(msg)
			return a, cmd
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case replyMsg:
		a.pending = false
		a.side.Apply(msg.reply)
		a.nextHint = 0
		a.showReply(msg.reply)
		return a, nil

	case errMsg:
		a.pending = false
		a.side.thinking = false
		a.side.connected = false
		a.chat.Add(RoleError, msg.err.Error())
		return a, nil

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) submit() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if text == "" || a.pending {
		return nil
	}
	a.chat.Add(RoleUser, text)
	a.input.Reset()
	a.pending = true
	a.side.thinking = true

	frame := webchat.WSMessage{
		Type:      webchat.TypeChat,
		Message:   text,
		UserID:    a.cfg.UserID,
		SessionID: a.cfg.SessionID,
	}
	transport, timeout := a.transport, a.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		reply, err := transport.Exchange(ctx, frame)
		if err != nil {
			return errMsg{err: err}
		}
		return replyMsg{reply: reply}
	}
}

func (a *App) useSuggestion() {
	hints := a.side.Suggestions()
	if len(hints) == 0 {
		return
	}
	a.input.SetValue(hints[a.nextHint%len(hints)])
	a.nextHint++
}

func (a *App) showReply(r *Reply) {
	switch r.Type {
	case webchat.TypeChatResponse:
		role := RoleAssistant
		if r.IsMarketingResponse {
			role = RoleMarketing
		}
		a.chat.Add(role, r.Response)
	case webchat.TypeError:
		a.chat.Add(RoleError, r.Message)
	default:
		a.chat.Add(RoleAssistant, fmt.Sprintf("[%s] %s", r.Type, string(r.Result)))
	}
}

func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Connecting..."
	}

	statusBar := StatusBarStyle.Width(a.width).Render(
		fmt.Sprintf("BiteBase Copilot | %s | session %s", a.cfg.UserID, a.cfg.SessionID))
	inputBar := a.input.View(a.width)
	helpBar := a.help.View(a.keys)

	contentHeight := a.height - lipgloss.Height(statusBar) - lipgloss.Height(inputBar) - lipgloss.Height(helpBar)
	leftWidth := int(float64(a.width) * 0.7)
	rightWidth := a.width - leftWidth

	layout := lipgloss.JoinHorizontal(lipgloss.Top,
		a.chat.View(leftWidth, contentHeight),
		a.side.View(rightWidth, contentHeight))

	return lipgloss.JoinVertical(lipgloss.Left, statusBar, layout, inputBar, helpBar)
}

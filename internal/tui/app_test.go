package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khiwniti/beta-bitebase/internal/channel/webchat"
	"github.com/khiwniti/beta-bitebase/internal/copilot"
)

type fakeTransport struct {
	reply *Reply
	err   error
	sent  []webchat.WSMessage
}

func (f *fakeTransport) Exchange(_ context.Context, msg webchat.WSMessage) (*Reply, error) {
	f.sent = append(f.sent, msg)
	return f.reply, f.err
}

func (f *fakeTransport) Close() error { return nil }

func testConfig() Config {
	return Config{URL: "ws://localhost:8001/copilotkit", UserID: "u1", SessionID: "s1", Timeout: time.Second}
}

func press(t *testing.T, a *App, k tea.KeyType) tea.Cmd {
	t.Helper()
	_, cmd := a.Update(tea.KeyMsg{Type: k})
	return cmd
}

func TestApp_SendAndReceive(t *testing.T) {
	transport := &fakeTransport{reply: &Reply{
		Type:        webchat.TypeChatResponse,
		Response:    "Key factors for opening a successful coffee shop include location.",
		Suggestions: []string{"Analyze a specific location", "Get demographic insights"},
	}}
	a := NewApp(testConfig(), transport)

	a.input.SetValue("  coffee shop tips  ")
	cmd := press(t, a, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, a.pending)
	assert.Empty(t, a.input.Value())
	assert.Nil(t, press(t, a, tea.KeyEnter), "no second send while waiting")

	msg := cmd()
	require.IsType(t, replyMsg{}, msg)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, webchat.WSMessage{Type: webchat.TypeChat, Message: "coffee shop tips", UserID: "u1", SessionID: "s1"}, transport.sent[0])

	a.Update(msg)
	assert.False(t, a.pending)
	lines := a.chat.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, Line{Role: RoleUser, Content: "coffee shop tips"}, lines[0])
	assert.Equal(t, RoleAssistant, lines[1].Role)
	assert.Equal(t, 1, a.side.turns)

	press(t, a, tea.KeyTab)
	assert.Equal(t, "Analyze a specific location", a.input.Value())
	press(t, a, tea.KeyTab)
	assert.Equal(t, "Get demographic insights", a.input.Value())
	press(t, a, tea.KeyTab)
	assert.Equal(t, "Analyze a specific location", a.input.Value())
}

func TestApp_MarketingReply(t *testing.T) {
	a := NewApp(testConfig(), &fakeTransport{})
	a.Update(replyMsg{reply: &Reply{
		Type:                webchat.TypeChatResponse,
		Response:            "Loyalty programs work well.",
		IsMarketingResponse: true,
		Keywords:            json.RawMessage(`["loyalty","coffee"]`),
	}})

	lines := a.chat.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, RoleMarketing, lines[0].Role)
	assert.Equal(t, []string{"loyalty", "coffee"}, a.side.keywords)
}

func TestApp_ErrorsAreShown(t *testing.T) {
	transport := &fakeTransport{err: errors.New("receive: connection reset")}
	a := NewApp(testConfig(), transport)

	a.input.SetValue("hello")
	cmd := press(t, a, tea.KeyEnter)
	a.Update(cmd())

	lines := a.chat.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, Line{Role: RoleError, Content: "receive: connection reset"}, lines[1])
	assert.False(t, a.side.connected)
	assert.False(t, a.pending)

	a.Update(replyMsg{reply: &Reply{Type: webchat.TypeError, Message: "Failed to process chat message"}})
	assert.Equal(t, Line{Role: RoleError, Content: "Failed to process chat message"}, a.chat.Lines()[2])
}

func TestApp_EmptyInputAndQuit(t *testing.T) {
	a := NewApp(testConfig(), &fakeTransport{})
	assert.Nil(t, press(t, a, tea.KeyEnter))
	assert.Nil(t, press(t, a, tea.KeyTab))
	assert.Empty(t, a.input.Value())

	cmd := press(t, a, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestApp_View(t *testing.T) {
	a := NewApp(testConfig(), &fakeTransport{})
	assert.Equal(t, "Connecting...", a.View())

	a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	view := a.View()
	assert.Contains(t, view, "BiteBase Copilot")
	assert.Contains(t, view, "Session")
}

type echoCopilot struct{}

func (echoCopilot) HandleMessage(_ context.Context, msg copilot.Message) (*copilot.Response, error) {
	return &copilot.Response{
		Response:    "echo: " + msg.Message,
		MessageID:   "m1",
		SessionID:   msg.SessionID,
		Suggestions: []string{"More"},
	}, nil
}

func (echoCopilot) ExecuteAction(context.Context, copilot.ActionRequest) (*copilot.ActionResult, error) {
	return nil, copilot.ErrUnknownAction
}

func (echoCopilot) UpdateContext(context.Context, string, string, map[string]interface{}) error {
	return nil
}

func TestClient_Exchange(t *testing.T) {
	srv := httptest.NewServer(webchat.NewWebChatAdapter(echoCopilot{}, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Exchange(ctx, webchat.WSMessage{Type: webchat.TypeChat, Message: "hi", UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, webchat.TypeChatResponse, reply.Type)
	assert.Equal(t, "echo: hi", reply.Response)
	assert.Equal(t, []string{"More"}, reply.Suggestions)

	reply, err = client.Exchange(ctx, webchat.WSMessage{Type: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, webchat.TypeError, reply.Type)
	assert.Equal(t, "Unknown message type", reply.Message)
}

func TestDial_Unreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, url)
	assert.Error(t, err)
}

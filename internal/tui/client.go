package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khiwniti/beta-bitebase/internal/channel/webchat"
)

// Reply is any frame the copilot sends back.
type Reply struct {
	Type                string          `json:"type"`
	Response            string          `json:"response,omitempty"`
	MessageID           string          `json:"message_id,omitempty"`
	SessionID           string          `json:"session_id,omitempty"`
	Suggestions         []string        `json:"suggestions,omitempty"`
	IsMarketingResponse bool            `json:"is_marketing_response,omitempty"`
	Keywords            json.RawMessage `json:"keywords,omitempty"`
	Action              string          `json:"action,omitempty"`
	Result              json.RawMessage `json:"result,omitempty"`
	Message             string          `json:"message,omitempty"`
}

// Transport sends one frame and waits for the answer to it.
type Transport interface {
	Exchange(ctx context.Context, msg webchat.WSMessage) (*Reply, error)
	Close() error
}

// Client is a copilot WebSocket connection. Exchanges are serialized.
type Client struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Dial connects to a copilot /copilotkit endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to copilot: %w", err)
	}
	return &Client{ws: ws}, nil
}

// Exchange writes msg and reads the next frame.
func (c *Client) Exchange(ctx context.Context, msg webchat.WSMessage) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * time.Minute)
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	_ = c.ws.SetReadDeadline(deadline)
	var reply Reply
	if err := c.ws.ReadJSON(&reply); err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return &reply, nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

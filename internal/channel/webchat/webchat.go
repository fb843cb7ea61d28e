package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/khiwniti/beta-bitebase/internal/copilot"
	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

const (
	maxMessageSize = 1 << 20
	writeTimeout   = 10 * time.Second
)

// Inbound message types
const (
	TypeChat          = "chat"
	TypeAction        = "action"
	TypeContextUpdate = "context_update"
)

// Outbound message types
const (
	TypeChatResponse   = "chat_response"
	TypeActionResult   = "action_result"
	TypeContextUpdated = "context_updated"
	TypeError          = "error"
)

// Copilot is the service behind the socket.
type Copilot interface {
	HandleMessage(ctx context.Context, msg copilot.Message) (*copilot.Response, error)
	ExecuteAction(ctx context.Context, req copilot.ActionRequest) (*copilot.ActionResult, error)
	UpdateContext(ctx context.Context, userID, sessionID string, uiContext map[string]interface{}) error
}

// WSMessage is any frame a client sends.
type WSMessage struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

type chatResponse struct {
	Type                string          `json:"type"`
	Response            string          `json:"response"`
	MessageID           string          `json:"message_id"`
	SessionID           string          `json:"session_id"`
	Suggestions         []string        `json:"suggestions"`
	Charts              json.RawMessage `json:"charts,omitempty"`
	Sentiment           json.RawMessage `json:"sentiment,omitempty"`
	Keywords            json.RawMessage `json:"keywords,omitempty"`
	IsMarketingResponse bool            `json:"is_marketing_response,omitempty"`
}

type actionResult struct {
	Type      string      `json:"type"`
	Action    string      `json:"action"`
	Result    interface{} `json:"result"`
	Status    string      `json:"status,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type contextUpdated struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// WebChatAdapter serves the copilot WebSocket endpoint.
type WebChatAdapter struct {
	svc      Copilot
	upgrader websocket.Upgrader
	conns    map[string]*conn
	connMux  sync.RWMutex
	logger   *slog.Logger
}

// NewWebChatAdapter creates the adapter. Browser origins must be listed in
// allowedOrigins; "*" allows any origin.
func NewWebChatAdapter(svc Copilot, allowedOrigins []string) *WebChatAdapter {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebChatAdapter{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		conns:  make(map[string]*conn),
		logger: logging.WithComponent("webchat"),
	}
}

// Name returns the channel name
func (w *WebChatAdapter) Name() string {
	return "webchat"
}

// ConnectionCount returns the number of open sockets
func (w *WebChatAdapter) ConnectionCount() int {
	w.connMux.RLock()
	defer w.connMux.RUnlock()
	return len(w.conns)
}

// CloseAll closes every open socket. Hijacked connections are not closed by
// http.Server.Shutdown, so the server calls this on shutdown.
func (w *WebChatAdapter) CloseAll() {
	w.connMux.Lock()
	defer w.connMux.Unlock()
	for id, c := range w.conns {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.ws.Close()
		delete(w.conns, id)
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop.
func (w *WebChatAdapter) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	c := &conn{ws: ws}
	w.connMux.Lock()
	w.conns[id] = c
	w.connMux.Unlock()
	metrics.ActiveConnections.Inc()
	w.logger.Info("Copilot WebSocket connection established", "connection_id", id)

	defer func() {
		w.connMux.Lock()
		delete(w.conns, id)
		w.connMux.Unlock()
		metrics.ActiveConnections.Dec()
		ws.Close()
		w.logger.Info("Copilot WebSocket disconnected", "connection_id", id)
	}()

	ctx := r.Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("WebSocket read error", "connection_id", id, "error", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.send(c, errorMessage{Type: TypeError, Message: "Invalid message format"})
			continue
		}
		w.logger.Info("Received copilot message", "type", msg.Type, "user_id", msg.UserID)

		if err := w.send(c, w.dispatch(ctx, msg)); err != nil {
			return
		}
	}
}

func (w *WebChatAdapter) send(c *conn, v interface{}) error {
	if err := c.writeJSON(v); err != nil {
		w.logger.Warn("WebSocket write failed", "error", err)
		return err
	}
	return nil
}

func (w *WebChatAdapter) dispatch(ctx context.Context, msg WSMessage) interface{} {
	switch msg.Type {
	case TypeChat:
		return w.handleChat(ctx, msg)
	case TypeAction:
		return w.handleAction(ctx, msg)
	case TypeContextUpdate:
		return w.handleContextUpdate(ctx, msg)
	default:
		return errorMessage{Type: TypeError, Message: "Unknown message type"}
	}
}

func (w *WebChatAdapter) handleChat(ctx context.Context, msg WSMessage) interface{} {
	resp, err := w.svc.HandleMessage(ctx, copilot.Message{
		Message:   msg.Message,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Context:   msg.Context,
	})
	if errors.Is(err, copilot.ErrInvalidMessage) {
		return errorMessage{Type: TypeError, Message: err.Error()}
	}
	if err != nil {
		w.logger.Error("Error handling chat message", "user_id", msg.UserID, "error", err)
		return errorMessage{Type: TypeError, Message: "Failed to process chat message"}
	}

	out := chatResponse{
		Type:        TypeChatResponse,
		Response:    resp.Response,
		MessageID:   resp.MessageID,
		SessionID:   resp.SessionID,
		Suggestions: resp.Suggestions,
	}
	if resp.IsMarketingResponse {
		out.Charts = resp.Charts
		out.Sentiment = resp.Sentiment
		out.Keywords = resp.Keywords
		out.IsMarketingResponse = true
	}
	return out
}

func (w *WebChatAdapter) handleAction(ctx context.Context, msg WSMessage) interface{} {
	res, err := w.svc.ExecuteAction(ctx, copilot.ActionRequest{
		Action:     msg.Action,
		Parameters: msg.Parameters,
		UserID:     msg.UserID,
		SessionID:  msg.SessionID,
		RequestID:  msg.RequestID,
	})
	switch {
	case errors.Is(err, copilot.ErrUnknownAction):
		return actionResult{
			Type:      TypeActionResult,
			Action:    msg.Action,
			Result:    map[string]string{"error": fmt.Sprintf("Unknown action: %s", msg.Action)},
			Status:    "error",
			RequestID: msg.RequestID,
		}
	case errors.Is(err, copilot.ErrMissingQuery):
		return actionResult{
			Type:      TypeActionResult,
			Action:    msg.Action,
			Result:    map[string]string{"error": fmt.Sprintf("Query is required for %s", msg.Action)},
			Status:    "error",
			RequestID: msg.RequestID,
		}
	case err != nil:
		w.logger.Error("Error handling action request", "action", msg.Action, "error", err)
		return errorMessage{Type: TypeError, Message: "Failed to execute action"}
	}

	return actionResult{
		Type:      TypeActionResult,
		Action:    res.Action,
		Result:    res.Result,
		Status:    res.Status,
		RequestID: res.RequestID,
	}
}

func (w *WebChatAdapter) handleContextUpdate(ctx context.Context, msg WSMessage) interface{} {
	if err := w.svc.UpdateContext(ctx, msg.UserID, msg.SessionID, msg.Context); err != nil {
		w.logger.Error("Error handling context update", "user_id", msg.UserID, "error", err)
		return errorMessage{Type: TypeError, Message: "Failed to update context"}
	}
	return contextUpdated{Type: TypeContextUpdated, SessionID: msg.SessionID}
}

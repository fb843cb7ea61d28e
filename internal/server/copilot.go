package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/khiwniti/beta-bitebase/internal/contextstore"
	"github.com/khiwniti/beta-bitebase/internal/copilot"
)

// CopilotService answers chat messages
type CopilotService interface {
	HandleMessage(ctx context.Context, msg copilot.Message) (*copilot.Response, error)
	HandleMarketing(ctx context.Context, msg copilot.Message) (*copilot.Response, error)
}

// SessionStore exposes the conversation logs behind the copilot
type SessionStore interface {
	Sessions(ctx context.Context, userID string) ([]contextstore.SessionSummary, error)
	ReadLog(ctx context.Context, userID, sessionID string) []contextstore.Turn
	Clear(ctx context.Context, userID, sessionID string) error
	LoadContext(ctx context.Context, userID, sessionID string) (map[string]any, error)
}

// SessionsResponse represents the sessions list
type SessionsResponse struct {
	UserID     string                        `json:"user_id"`
	Sessions   []contextstore.SessionSummary `json:"sessions"`
	TotalCount int                           `json:"total_count"`
}

// SessionHistoryResponse is one page of a session's conversation log
type SessionHistoryResponse struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	contextstore.Page
}

// SessionContextResponse is the UI context last reported for a session
type SessionContextResponse struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

type copilotHandlers struct {
	svc      CopilotService
	sessions SessionStore
	srv      *Server
}

// RegisterCopilot mounts the copilot chat API and, when ws is non-nil, the
// WebSocket endpoint at /copilotkit.
func RegisterCopilot(s *Server, svc CopilotService, sessions SessionStore, ws http.Handler) {
	h := &copilotHandlers{svc: svc, sessions: sessions, srv: s}

	if ws != nil {
		s.Handle("GET /copilotkit", ws)
	}
	s.HandleFunc("POST /copilotkit/chat", h.chat)
	s.HandleFunc("POST /api/marketing-research", h.marketingResearch)
	s.HandleFunc("GET /copilotkit/sessions/{user_id}", h.listSessions)
	s.HandleFunc("GET /copilotkit/sessions/{user_id}/{session_id}/history", h.sessionHistory)
	s.HandleFunc("DELETE /copilotkit/sessions/{user_id}/{session_id}/history", h.clearSession)
	s.HandleFunc("GET /copilotkit/sessions/{user_id}/{session_id}/context", h.sessionContext)
}

func (h *copilotHandlers) chat(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.svc.HandleMessage)
}

func (h *copilotHandlers) marketingResearch(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.svc.HandleMarketing)
}

func (h *copilotHandlers) answer(w http.ResponseWriter, r *http.Request, handle func(context.Context, copilot.Message) (*copilot.Response, error)) {
	var msg copilot.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	resp, err := handle(r.Context(), msg)
	if errors.Is(err, copilot.ErrInvalidMessage) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.srv.logger.Error("Error processing chat message", "user_id", msg.UserID, "error", err)
		http.Error(w, "Failed to process chat message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *copilotHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	sessions, err := h.sessions.Sessions(r.Context(), userID)
	if err != nil {
		h.srv.logger.Error("Failed to list sessions", "user_id", userID, "error", err)
		http.Error(w, "Failed to retrieve sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []contextstore.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, SessionsResponse{
		UserID:     userID,
		Sessions:   sessions,
		TotalCount: len(sessions),
	})
}

func (h *copilotHandlers) sessionHistory(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := r.PathValue("user_id"), r.PathValue("session_id")
	turns := h.sessions.ReadLog(r.Context(), userID, sessionID)
	page := contextstore.Paginate(turns,
		queryInt(r, "page", 1),
		queryInt(r, "page_size", contextstore.DefaultPageSize))

	writeJSON(w, http.StatusOK, SessionHistoryResponse{
		UserID:    userID,
		SessionID: sessionID,
		Page:      page,
	})
}

func (h *copilotHandlers) clearSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := r.PathValue("user_id"), r.PathValue("session_id")
	if err := h.sessions.Clear(r.Context(), userID, sessionID); err != nil {
		h.srv.logger.Error("Failed to clear session", "user_id", userID, "session_id", sessionID, "error", err)
		http.Error(w, "Failed to clear session history", http.StatusInternalServerError)
		return
	}
	h.srv.logger.Info("Session history cleared", "user_id", userID, "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session history cleared successfully"})
}

func (h *copilotHandlers) sessionContext(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := r.PathValue("user_id"), r.PathValue("session_id")
	uiContext, err := h.sessions.LoadContext(r.Context(), userID, sessionID)
	if err != nil {
		h.srv.logger.Error("Failed to load session context", "user_id", userID, "session_id", sessionID, "error", err)
		http.Error(w, "Failed to retrieve session context", http.StatusInternalServerError)
		return
	}
	if uiContext == nil {
		uiContext = map[string]any{}
	}
	writeJSON(w, http.StatusOK, SessionContextResponse{
		UserID:    userID,
		SessionID: sessionID,
		Context:   uiContext,
	})
}

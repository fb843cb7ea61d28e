package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/khiwniti/beta-bitebase/internal/copilot"
	"github.com/khiwniti/beta-bitebase/internal/history"
)

const historySaveTimeout = 5 * time.Second

// ChatService answers backend chat messages
type ChatService interface {
	HandleMessage(ctx context.Context, msg copilot.Message) (*copilot.Response, error)
}

// HistoryStore keeps user chat history and feedback
type HistoryStore interface {
	SaveMessage(ctx context.Context, msg history.Message) (bool, error)
	List(ctx context.Context, userID string, page, pageSize int) (*history.Page, error)
	Clear(ctx context.Context, userID string) error
	SaveFeedback(ctx context.Context, fb history.Feedback) error
	Feedback(ctx context.Context, messageID string) (*history.Feedback, error)
}

// ChatRequest is a backend chat message
type ChatRequest struct {
	Message     string                 `json:"message"`
	UserID      string                 `json:"user_id"`
	SessionID   string                 `json:"session_id,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Location    string                 `json:"location,omitempty"`
	CuisineType string                 `json:"cuisine_type,omitempty"`
}

// ChatResponse is the backend chat reply
type ChatResponse struct {
	Response    string                 `json:"response"`
	MessageID   string                 `json:"message_id"`
	Timestamp   string                 `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Suggestions []string               `json:"suggestions"`
}

// FeedbackRequest rates one chat message
type FeedbackRequest struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Feedback  string `json:"feedback"`
	Rating    int    `json:"rating"`
}

type backendHandlers struct {
	svc     ChatService
	history HistoryStore
	bg      background
	srv     *Server
}

// RegisterBackend mounts the user backend chat API. History writes run after
// the response is sent; Shutdown waits for them.
func RegisterBackend(s *Server, svc ChatService, store HistoryStore) {
	h := &backendHandlers{svc: svc, history: store, srv: s}

	s.HandleFunc("POST /api/v1/chat", h.chat)
	s.HandleFunc("GET /api/v1/chat/history", h.getHistory)
	s.HandleFunc("DELETE /api/v1/chat/history", h.clearHistory)
	s.HandleFunc("POST /api/v1/chat/feedback", h.feedback)
	s.HandleFunc("GET /api/v1/chat/feedback/{message_id}", h.getFeedback)
	s.HandleFunc("GET /api/v1/chat/suggestions", h.suggestions)

	s.OnShutdown(h.bg.Wait)
}

func (h *backendHandlers) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.UserID
	}
	msgContext := mergeContext(req.Context, req.Location, req.CuisineType)

	h.srv.logger.Info("Processing chat message", "user_id", req.UserID, "message_length", len(req.Message))
	resp, err := h.svc.HandleMessage(r.Context(), copilot.Message{
		Message:   req.Message,
		UserID:    req.UserID,
		SessionID: sessionID,
		Context:   msgContext,
	})
	if errors.Is(err, copilot.ErrInvalidMessage) {
		http.Error(w, "message and user_id are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.srv.logger.Error("Error processing chat message", "user_id", req.UserID, "error", err)
		http.Error(w, "Failed to process chat message", http.StatusInternalServerError)
		return
	}

	saved := history.Message{
		MessageID:   resp.MessageID,
		UserID:      req.UserID,
		UserMessage: req.Message,
		AIResponse:  resp.Response,
		Context:     msgContext,
		Timestamp:   resp.Timestamp,
	}
	saveCtx := context.WithoutCancel(r.Context())
	h.bg.Go(func() {
		ctx, cancel := context.WithTimeout(saveCtx, historySaveTimeout)
		defer cancel()
		if _, err := h.history.SaveMessage(ctx, saved); err != nil {
			h.srv.logger.Warn("Failed to save chat history", "user_id", saved.UserID, "message_id", saved.MessageID, "error", err)
		}
	})

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:    resp.Response,
		MessageID:   resp.MessageID,
		Timestamp:   resp.Timestamp.Format(time.RFC3339),
		Context:     msgContext,
		Suggestions: resp.Suggestions,
	})
}

func (h *backendHandlers) getHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	page, err := h.history.List(r.Context(), userID,
		queryInt(r, "page", 1),
		queryInt(r, "page_size", history.DefaultPageSize))
	if err != nil {
		h.srv.logger.Error("Error fetching chat history", "user_id", userID, "error", err)
		http.Error(w, "Failed to fetch chat history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *backendHandlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	if err := h.history.Clear(r.Context(), userID); err != nil {
		h.srv.logger.Error("Error clearing chat history", "user_id", userID, "error", err)
		http.Error(w, "Failed to clear chat history", http.StatusInternalServerError)
		return
	}
	h.srv.logger.Info("Chat history cleared", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared successfully"})
}

func (h *backendHandlers) feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.MessageID == "" || req.UserID == "" {
		http.Error(w, "message_id and user_id required", http.StatusBadRequest)
		return
	}

	err := h.history.SaveFeedback(r.Context(), history.Feedback{
		MessageID: req.MessageID,
		UserID:    req.UserID,
		Feedback:  req.Feedback,
		Rating:    req.Rating,
	})
	if errors.Is(err, history.ErrInvalidRating) {
		http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.srv.logger.Error("Error submitting feedback", "user_id", req.UserID, "message_id", req.MessageID, "error", err)
		http.Error(w, "Failed to submit feedback", http.StatusInternalServerError)
		return
	}
	h.srv.logger.Info("Chat feedback submitted", "user_id", req.UserID, "message_id", req.MessageID, "rating", req.Rating)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Feedback submitted successfully"})
}

func (h *backendHandlers) getFeedback(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	fb, err := h.history.Feedback(r.Context(), messageID)
	if err != nil {
		h.srv.logger.Error("Error fetching feedback", "message_id", messageID, "error", err)
		http.Error(w, "Failed to fetch feedback", http.StatusInternalServerError)
		return
	}
	if fb == nil {
		http.Error(w, "Feedback not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (h *backendHandlers) suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": copilot.PromptSuggestions(r.URL.Query().Get("context")),
	})
}

// mergeContext copies ctx and adds the location and cuisine fields when set.
func mergeContext(ctx map[string]interface{}, location, cuisine string) map[string]interface{} {
	out := make(map[string]interface{}, len(ctx)+2)
	for k, v := range ctx {
		out[k] = v
	}
	if location != "" {
		out["location"] = location
	}
	if cuisine != "" {
		out["cuisine_type"] = cuisine
	}
	return out
}

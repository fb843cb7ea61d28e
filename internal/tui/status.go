package tui

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side is the session panel next to the conversation.
type Side struct {
	url         string
	userID      string
	sessionID   string
	connected   bool
	thinking    bool
	turns       int
	suggestions []string
	keywords    []string
}

func NewSide(cfg Config) *Side {
	return &Side{
		url:       cfg.URL,
		userID:    cfg.UserID,
		sessionID: cfg.SessionID,
		connected: true,
	}
}

// Apply records what a reply carries for the panel.
func (s *Side) Apply(r *Reply) {
	s.thinking = false
	s.connected = true
	if r.Type != "chat_response" {
		return
	}
	s.turns++
	s.suggestions = append([]string(nil), r.Suggestions...)
	s.keywords = nil
	if r.IsMarketingResponse && len(r.Keywords) > 0 {
		_ = json.Unmarshal(r.Keywords, &s.keywords)
	}
}

// Suggestions returns the follow-ups of the last reply.
func (s *Side) Suggestions() []string {
	return s.suggestions
}

func (s *Side) View(width, height int) string {
	state := "connected"
	switch {
	case !s.connected:
		state = ErrorMessageStyle.Render("disconnected")
	case s.thinking:
		state = MarketingMessageStyle.Render("thinking...")
	}

	var b strings.Builder
	b.WriteString(HeadingStyle.Render("Session") + "\n")
	fmt.Fprintf(&b, "Copilot: %s\nUser: %s\nSession: %s\nTurns: %d\nStatus: %s\n",
		s.url, s.userID, s.sessionID, s.turns, state)

	if len(s.suggestions) > 0 {
		b.WriteString("\n" + HeadingStyle.Render("Suggestions") + "\n")
		for i, sug := range s.suggestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, sug)
		}
	}
	if len(s.keywords) > 0 {
		b.WriteString("\n" + HeadingStyle.Render("Keywords") + "\n")
		b.WriteString(strings.Join(s.keywords, ", ") + "\n")
	}
	return SidePanelStyle.Width(width - 2).Height(height - 2).Render(b.String())
}

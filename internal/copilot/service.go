// Package copilot answers chat messages for the BiteBase assistant. Each
// message is classified, dispatched to the capability that serves it, and
// recorded in the session's conversation log.
package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khiwniti/beta-bitebase/internal/classifier"
	"github.com/khiwniti/beta-bitebase/internal/contextstore"
	"github.com/khiwniti/beta-bitebase/internal/dispatch"
	"github.com/khiwniti/beta-bitebase/internal/inference"
	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/messaging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

var (
	ErrInvalidMessage = errors.New("message, user_id and session_id are required")
	ErrUnknownAction  = errors.New("unknown action")
	ErrMissingQuery   = errors.New("query is required")
)

const DefaultPromptTurns = 3

const noMarketingInsight = "I couldn't find marketing insights for that request. Try asking about promotions, loyalty programs or your competitors."

// Dispatcher runs a named capability.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, params map[string]interface{}, userID string, callCtx map[string]interface{}) dispatch.Result
}

// ContextStore is the conversation log used by the service.
type ContextStore interface {
	ReadLog(ctx context.Context, userID, sessionID string) []contextstore.Turn
	AppendTurn(ctx context.Context, userID, sessionID, userMessage, assistantMessage string) error
	SaveContext(ctx context.Context, userID, sessionID string, uiContext map[string]any) error
}

// TurnPublisher announces completed turns.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event messaging.TurnEvent) (string, error)
}

// Message is one inbound chat message.
type Message struct {
	Message   string                 `json:"message"`
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Validate checks the required fields.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Message) == "" || m.UserID == "" || m.SessionID == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Action is a follow-up the client can offer the user.
type Action struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Response is the answer to one message.
type Response struct {
	Response            string          `json:"response"`
	MessageID           string          `json:"message_id"`
	SessionID           string          `json:"session_id"`
	Timestamp           time.Time       `json:"timestamp"`
	Suggestions         []string        `json:"suggestions"`
	Charts              json.RawMessage `json:"charts,omitempty"`
	Sentiment           json.RawMessage `json:"sentiment,omitempty"`
	Keywords            json.RawMessage `json:"keywords,omitempty"`
	IsMarketingResponse bool            `json:"is_marketing_response,omitempty"`
	Actions             []Action        `json:"actions,omitempty"`
	Source              dispatch.Source `json:"source,omitempty"`
}

// Options tunes a Service.
type Options struct {
	PromptTurns int
	Model       string
	Source      string
	Classifier  *classifier.Classifier
}

// Service is the per-message orchestrator.
type Service struct {
	store       ContextStore
	router      Dispatcher
	publisher   TurnPublisher
	classifier  *classifier.Classifier
	promptTurns int
	model       string
	source      string
	logger      *slog.Logger
	newID       func() string
	now         func() time.Time
}

// NewService creates a service. publisher may be nil.
func NewService(store ContextStore, router Dispatcher, publisher TurnPublisher, opts Options) *Service {
	s := &Service{
		store:       store,
		router:      router,
		publisher:   publisher,
		classifier:  opts.Classifier,
		promptTurns: opts.PromptTurns,
		model:       opts.Model,
		source:      opts.Source,
		logger:      logging.WithComponent("copilot"),
		newID:       uuid.NewString,
		now:         time.Now,
	}
	if s.classifier == nil {
		s.classifier = classifier.New(nil)
	}
	if s.promptTurns <= 0 {
		s.promptTurns = DefaultPromptTurns
	}
	if s.source == "" {
		s.source = messaging.SourceCopilot
	}
	return s
}

// HandleMessage answers a chat message.
func (s *Service) HandleMessage(ctx context.Context, msg Message) (*Response, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return s.respond(ctx, msg, s.classifier.Classify(msg.Message))
}

// HandleMarketing answers a message on the marketing research path, whatever
// its keywords, and offers the detailed view as an action.
func (s *Service) HandleMarketing(ctx context.Context, msg Message) (*Response, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.respond(ctx, msg, s.classifier.Refine(msg.Message))
	if err != nil {
		return nil, err
	}
	resp.Actions = []Action{{
		Name:        "view_marketing_details",
		DisplayName: "View Marketing Details",
		Description: "View detailed marketing analysis and visualizations",
		Parameters: map[string]interface{}{
			"charts":    resp.Charts,
			"sentiment": resp.Sentiment,
			"keywords":  resp.Keywords,
		},
	}}
	return resp, nil
}

func (s *Service) respond(ctx context.Context, msg Message, decision classifier.Decision) (*Response, error) {
	resp := &Response{
		MessageID: s.newID(),
		SessionID: msg.SessionID,
		Timestamp: s.now().UTC(),
	}
	history := contextstore.Last(s.store.ReadLog(ctx, msg.UserID, msg.SessionID), s.promptTurns)
	metrics.ClassifierDecisions.WithLabelValues(decision.Category, decision.Action).Inc()

	var res dispatch.Result
	if decision.IsMarketing() {
		res = s.router.Dispatch(ctx, decision.Action, map[string]interface{}{"query": msg.Message}, msg.UserID, msg.Context)
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", decision.Action, err)
		}
		resp.Response = marketingText(decision.Action, res)
		resp.Charts = rawField(res, "charts", `{}`)
		resp.Sentiment = rawField(res, "sentiment", `{}`)
		resp.Keywords = rawField(res, "keywords", `[]`)
		resp.IsMarketingResponse = true
		resp.Suggestions = MarketingSuggestions(decision.Action)
	} else {
		prompt := BuildPrompt(history, msg.Context, msg.Message)
		res = s.router.Dispatch(ctx, dispatch.GeneralChat, map[string]interface{}{"prompt": prompt, "model": s.model}, msg.UserID, msg.Context)
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", dispatch.GeneralChat, err)
		}
		resp.Response = res.StringField("response")
		if resp.Response == "" {
			resp.Response = inference.FallbackReply(prompt)
		}
		resp.Suggestions = ChatSuggestions(msg.Message)
	}
	resp.Source = res.Source

	if err := s.store.AppendTurn(ctx, msg.UserID, msg.SessionID, msg.Message, resp.Response); err != nil {
		s.logger.Warn("Failed to save conversation turn",
			"user_id", msg.UserID,
			"session_id", msg.SessionID,
			"error", err)
	}
	s.publish(ctx, msg, resp)

	s.logger.Info("Processed chat message",
		"user_id", msg.UserID,
		"session_id", msg.SessionID,
		"category", decision.Category,
		"action", decision.Action,
		"source", res.Source)
	return resp, nil
}

func (s *Service) publish(ctx context.Context, msg Message, resp *Response) {
	if s.publisher == nil {
		return
	}
	event := messaging.NewTurnEvent(s.source, msg.UserID, msg.SessionID, resp.MessageID, msg.Message, resp.Response, msg.Context)
	if _, err := s.publisher.PublishTurn(ctx, event); err != nil {
		metrics.TurnEvents.WithLabelValues("publish_failed").Inc()
		s.logger.Warn("Failed to publish turn event", "message_id", resp.MessageID, "error", err)
		return
	}
	metrics.TurnEvents.WithLabelValues("published").Inc()
}

// UpdateContext stores the client's UI context for a session.
func (s *Service) UpdateContext(ctx context.Context, userID, sessionID string, uiContext map[string]interface{}) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("%w: user_id and session_id are required", ErrInvalidMessage)
	}
	if uiContext == nil {
		uiContext = map[string]interface{}{}
	}
	if err := s.store.SaveContext(ctx, userID, sessionID, uiContext); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	s.logger.Info("Updated copilot context", "user_id", userID, "session_id", sessionID)
	return nil
}

// BuildPrompt assembles the model prompt from the system preamble, the given
// history, the client context and the new message.
func BuildPrompt(history []contextstore.Turn, uiContext map[string]interface{}, message string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.User, turn.Assistant)
	}
	if len(uiContext) > 0 {
		if data, err := json.Marshal(uiContext); err == nil {
			fmt.Fprintf(&b, "Current context: %s\n", data)
		}
	}
	fmt.Fprintf(&b, "User: %s\nAssistant:", message)
	return b.String()
}

func marketingText(action string, res dispatch.Result) string {
	if text := res.StringField("response"); text != "" {
		return text
	}
	if action == classifier.ActionDatasets {
		return datasetsSummary(res)
	}
	return noMarketingInsight
}

func datasetsSummary(res dispatch.Result) string {
	var names []string

	var byName map[string]json.RawMessage
	var list []struct {
		Name string `json:"name"`
	}
	switch {
	case res.Field("datasets", &byName):
		for name := range byName {
			names = append(names, name)
		}
	case res.Field("datasets", &list):
		for _, d := range list {
			if d.Name != "" {
				names = append(names, d.Name)
			}
		}
	}

	if len(names) == 0 {
		return "No marketing research datasets are available right now."
	}
	sort.Strings(names)
	return "Available marketing research datasets: " + strings.Join(names, ", ") + "."
}

func rawField(res dispatch.Result, name, def string) json.RawMessage {
	var raw json.RawMessage
	if res.Field(name, &raw) && len(raw) > 0 && string(raw) != "null" {
		return raw
	}
	return json.RawMessage(def)
}

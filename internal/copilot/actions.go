package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/khiwniti/beta-bitebase/internal/classifier"
	"github.com/khiwniti/beta-bitebase/internal/dispatch"
)

// ActionRequest is a client-triggered action.
type ActionRequest struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	UserID     string                 `json:"user_id"`
	SessionID  string                 `json:"session_id"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// ActionResult is the outcome of an action.
type ActionResult struct {
	Action    string          `json:"action"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	Source    dispatch.Source `json:"source,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

type actionRoute struct {
	capability string
	research   bool
}

var actionRoutes = map[string]actionRoute{
	"analyze_location":     {capability: "analyze_location"},
	"search_restaurants":   {capability: "search_restaurants"},
	"generate_report":      {capability: "generate_report"},
	"marketing_research":   {capability: classifier.ActionResearch, research: true},
	"marketing_campaign":   {capability: classifier.ActionCampaign, research: true},
	"competitive_analysis": {capability: classifier.ActionCompetitive, research: true},
}

// ExecuteAction runs a client action. Tool actions pass their parameters to
// the tool; research actions require a query.
func (s *Service) ExecuteAction(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	route, ok := actionRoutes[req.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}

	params := req.Parameters
	if route.research {
		query := researchQuery(req.Action, req.Parameters)
		if query == "" {
			return nil, fmt.Errorf("%w for %s", ErrMissingQuery, req.Action)
		}
		params = map[string]interface{}{"query": query}
	}

	s.logger.Info("Processing copilot action", "action", req.Action, "user_id", req.UserID)
	res := s.router.Dispatch(ctx, route.capability, params, req.UserID, nil)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", route.capability, err)
	}

	return &ActionResult{
		Action:    req.Action,
		Status:    "success",
		Result:    res.Payload,
		Source:    res.Source,
		RequestID: req.RequestID,
	}, nil
}

// researchQuery reads the query parameter. Competitive analysis folds a
// separate location into it.
func researchQuery(action string, params map[string]interface{}) string {
	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if action != "competitive_analysis" {
		return query
	}

	location, _ := params["location"].(string)
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return query
	case query == "":
		return location
	case strings.Contains(query, location):
		return query
	default:
		return query + " in " + location
	}
}

package copilot

import (
	"strings"

	"github.com/khiwniti/beta-bitebase/internal/classifier"
)

const maxSuggestions = 4

type suggestionSet struct {
	keyword     string
	suggestions []string
}

var chatSuggestionSets = []suggestionSet{
	{"location", []string{
		"Analyze competitor density in this area",
		"Get demographic insights for this location",
		"Compare with similar locations",
		"Generate a location scoring report",
	}},
	{"restaurant", []string{
		"Search for similar restaurants nearby",
		"Analyze menu pricing strategies",
		"Get customer review insights",
		"Compare performance metrics",
	}},
	{"market", []string{
		"Show market trends for this area",
		"Analyze seasonal patterns",
		"Get foot traffic data",
		"Compare market opportunities",
	}},
}

var defaultChatSuggestions = []string{
	"Analyze a specific location",
	"Search for restaurants in an area",
	"Generate a market analysis report",
	"Get demographic insights",
}

var marketingSuggestions = map[string][]string{
	classifier.ActionResearch: {
		"Compare with industry benchmarks",
		"Generate visual charts of this data",
		"Create a presentation version of this research",
		"Identify key action items from this research",
	},
	classifier.ActionCompetitive: {
		"Analyze specific competitors in this area",
		"Identify gaps in the market",
		"Suggest positioning strategies",
		"Create a competitive advantage plan",
	},
	classifier.ActionCampaign: {
		"Create an implementation timeline",
		"Estimate budget requirements",
		"Generate social media content ideas",
		"Design loyalty program structure",
	},
}

var defaultMarketingSuggestions = []string{
	"Get comprehensive research on this topic",
	"Analyze the competitive landscape",
	"Create a marketing campaign plan",
	"Get customer insights for this market",
}

var promptSuggestions = map[string][]string{
	"market_analysis": {
		"What's the competition level in this area?",
		"Show me foot traffic patterns",
		"Analyze demographic data for restaurants",
		"Compare this location to similar areas",
	},
	"restaurant_setup": {
		"Help me choose the best location",
		"What cuisine type works best here?",
		"Estimate startup costs for this area",
		"Show me successful restaurant examples",
	},
}

var defaultPromptSuggestions = []string{
	"Analyze market opportunities in Bangkok",
	"Compare competitor pricing strategies",
	"Show demographic insights for my location",
	"Generate a location scoring analysis",
	"Help me optimize my menu pricing",
	"What are the latest food trends?",
}

// ChatSuggestions returns follow-ups for a general chat message, chosen by
// the first keyword it contains.
func ChatSuggestions(message string) []string {
	lower := strings.ToLower(message)
	for _, set := range chatSuggestionSets {
		if strings.Contains(lower, set.keyword) {
			return capped(set.suggestions)
		}
	}
	return capped(defaultChatSuggestions)
}

// MarketingSuggestions returns follow-ups for a marketing action.
func MarketingSuggestions(action string) []string {
	if s, ok := marketingSuggestions[action]; ok {
		return capped(s)
	}
	return capped(defaultMarketingSuggestions)
}

// PromptSuggestions returns starter prompts for a screen context such as
// "market_analysis" or "restaurant_setup".
func PromptSuggestions(screen string) []string {
	if s, ok := promptSuggestions[screen]; ok {
		return append([]string(nil), s...)
	}
	return append([]string(nil), defaultPromptSuggestions...)
}

func capped(s []string) []string {
	if len(s) > maxSuggestions {
		s = s[:maxSuggestions]
	}
	return append([]string(nil), s...)
}

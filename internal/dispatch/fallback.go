package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/khiwniti/beta-bitebase/internal/inference"
)

const marketingResearchUnavailable = "Marketing research is temporarily unavailable. Here are general recommendations: " +
	"focus on loyalty programs for repeat guests, keep your social media active with photos of signature dishes, " +
	"and review competitor pricing in your area before launching a promotion."

// FallbackPayload returns the canned payload served for desc when its server
// cannot answer. The shape depends only on the descriptor's category.
func FallbackPayload(desc ToolDescriptor, call Call) json.RawMessage {
	var payload interface{}

	switch desc.Category {
	case CategoryGeospatial:
		payload = map[string]interface{}{
			"location": fallbackLocation(call.Parameters),
			"analysis": map[string]interface{}{
				"score":         8.5,
				"foot_traffic":  "High",
				"accessibility": "Excellent",
				"competition":   "Moderate",
			},
			"recommendations": []string{
				"Consider peak hour optimization",
				"Leverage high foot traffic",
				"Monitor competitor activities",
			},
		}
	case CategoryRestaurant:
		payload = map[string]interface{}{
			"restaurants": []map[string]interface{}{{
				"name":     "Sample Restaurant",
				"cuisine":  "Thai",
				"rating":   4.5,
				"distance": "0.3 km",
			}},
			"total_found":   1,
			"search_radius": "5 km",
		}
	case CategoryMarketing:
		payload = map[string]interface{}{
			"campaign_suggestions": []string{
				"Social media promotion",
				"Local food blogger outreach",
				"Happy hour specials",
			},
			"target_demographics": map[string]interface{}{
				"age_group": "25-35",
				"interests": []string{"food", "dining", "local_cuisine"},
			},
		}
	case CategoryMarketingResearch:
		payload = map[string]interface{}{
			"response":  marketingResearchUnavailable,
			"charts":    map[string]interface{}{},
			"sentiment": map[string]interface{}{},
			"keywords":  []string{},
			"datasets":  map[string]interface{}{},
		}
	case CategoryChat:
		prompt, _ := call.Parameters["prompt"].(string)
		payload = inference.FallbackResponse(prompt)
	default:
		payload = map[string]interface{}{
			"message":  fmt.Sprintf("Mock response from %s server", desc.Server),
			"endpoint": desc.Endpoint,
			"status":   "success",
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// fallbackLocation reads location from the tool parameters, or from a
// passthrough body that nests them under "parameters".
func fallbackLocation(params map[string]interface{}) interface{} {
	if loc, ok := params["location"]; ok && loc != nil {
		return loc
	}
	if nested, ok := params["parameters"].(map[string]interface{}); ok {
		if loc, ok := nested["location"]; ok && loc != nil {
			return loc
		}
	}
	return "Unknown"
}

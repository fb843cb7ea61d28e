package inference

import (
	"strings"
	"unicode"
)

// FallbackModel is reported as the model name of canned replies.
const FallbackModel = "fallback"

const coffeeShopReply = `Key factors for opening a successful coffee shop:

🏪 **Location & Demographics**
- High foot traffic areas (business districts, universities, residential neighborhoods)
- Target demographic analysis (age 25-45, income $40k+, coffee consumption habits)
- Visibility and accessibility with parking availability

☕ **Product & Menu Strategy**
- Quality coffee beans and consistent brewing methods
- Diverse menu (specialty drinks, food items, dietary options)
- Competitive pricing strategy ($3-6 for specialty drinks)

💰 **Financial Planning**
- Initial investment: $80k-$300k depending on size and location
- Break-even typically 12-18 months
- Focus on high-margin items (specialty drinks, pastries)

🎯 **Operations & Marketing**
- Skilled baristas and excellent customer service
- Strong brand identity and local community engagement
- Digital presence and loyalty programs

Would you like me to analyze a specific location for your coffee shop?`

const openRestaurantReply = `Starting a restaurant involves several key considerations:

📍 **Location Analysis** - Demographics, foot traffic, competition density
💰 **Financial Planning** - Startup costs ($175k-$750k average), cash flow projections
🍽️ **Concept Development** - Cuisine type, target market, pricing strategy
📋 **Operational Setup** - Permits, equipment, staffing, suppliers
📈 **Marketing Strategy** - Brand positioning, digital presence, community engagement

Would you like me to dive deeper into any of these areas or analyze a specific location?`

const (
	analyzeLocationReply = "I can help you analyze locations for restaurant opportunities. Please provide the specific location (address or area) you'd like me to analyze, and I'll assess factors like demographics, competition, foot traffic, and market potential."
	marketResearchReply  = "I can help with comprehensive market research including competitor analysis, demographic studies, foot traffic patterns, and market opportunity assessment. Please specify the location or type of analysis you need."
	competitionReply     = "I can analyze your competition by examining nearby restaurants, their pricing strategies, customer reviews, market positioning, and identifying gaps in the market. Please provide the location you're interested in."
	greetingReply        = "Hello! I'm your BiteBase AI restaurant consultant. I can help you with location analysis, market research, business planning, competitor insights, and strategic recommendations for your restaurant venture."
	defaultReply         = "I'm your BiteBase AI restaurant consultant. I can help with location analysis, market research, business planning, competitor analysis, and strategic insights. What specific aspect of your restaurant business would you like to explore?"
)

type cannedReply struct {
	all   []string
	anyOf []string
	words []string
	reply string
}

func (c cannedReply) matches(lower string) bool {
	if len(c.words) > 0 {
		for _, tok := range strings.FieldsFunc(lower, notLetter) {
			for _, w := range c.words {
				if tok == w {
					return true
				}
			}
		}
		return false
	}
	for _, kw := range c.all {
		if !strings.Contains(lower, kw) {
			return false
		}
	}
	if len(c.anyOf) == 0 {
		return true
	}
	for _, kw := range c.anyOf {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var cannedReplies = []cannedReply{
	{all: []string{"coffee shop"}, anyOf: []string{"factors", "successful", "key"}, reply: coffeeShopReply},
	{all: []string{"location", "analyze"}, reply: analyzeLocationReply},
	{all: []string{"restaurant"}, anyOf: []string{"open", "start"}, reply: openRestaurantReply},
	{all: []string{"market"}, anyOf: []string{"research", "analysis"}, reply: marketResearchReply},
	{anyOf: []string{"competition", "competitor"}, reply: competitionReply},
	{words: []string{"hello", "hi"}, reply: greetingReply},
}

// FallbackReply returns the canned consultant reply used when the model
// server cannot answer. Matching runs on the last user line of the prompt so
// the system preamble and history do not steer it; first match wins.
func FallbackReply(prompt string) string {
	lower := strings.ToLower(lastUserMessage(prompt))
	for _, c := range cannedReplies {
		if c.matches(lower) {
			return c.reply
		}
	}
	return defaultReply
}

// FallbackResponse wraps FallbackReply in the shape of a model response.
func FallbackResponse(prompt string) OllamaResponse {
	return OllamaResponse{
		Model:    FallbackModel,
		Response: FallbackReply(prompt),
		Done:     true,
	}
}

func notLetter(r rune) bool {
	return !unicode.IsLetter(r)
}

// lastUserMessage extracts the text after the final "User: " marker, without
// the trailing "Assistant:" cue. A prompt without markers is returned whole.
func lastUserMessage(prompt string) string {
	const marker = "User: "
	i := strings.LastIndex(prompt, marker)
	if i < 0 {
		return prompt
	}
	msg := prompt[i+len(marker):]
	msg = strings.TrimSuffix(strings.TrimSpace(msg), "Assistant:")
	return strings.TrimSpace(msg)
}

// Package classifier maps an inbound chat message to the capability that
// should answer it. Classification is keyword based, deterministic and free of
// I/O: an ordered rule list is evaluated top to bottom and the first rule with
// a matching keyword wins.
package classifier

import "strings"

// Categories
const (
	CategoryMarketing   = "marketing"
	CategoryGeneralChat = "general_chat"
)

// Marketing research actions
const (
	ActionInsight     = "insight"
	ActionResearch    = "research"
	ActionCompetitive = "competitive"
	ActionCampaign    = "campaign"
	ActionDatasets    = "datasets"
)

// Decision is the outcome of classifying one message. Action is empty for
// general chat.
type Decision struct {
	Category string `json:"category"`
	Action   string `json:"action,omitempty"`
}

// IsMarketing reports whether the decision routes to marketing research.
func (d Decision) IsMarketing() bool {
	return d.Category == CategoryMarketing
}

// Rule tags a keyword set with the action it selects.
type Rule struct {
	Action   string
	Keywords []string
}

// Matches reports whether any keyword occurs in the lower-cased message.
func (r Rule) Matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DefaultRules is the production rule order. Competitive is tested before
// research so "comprehensive competitive analysis" stays competitive.
var DefaultRules = []Rule{
	{
		Action:   ActionCompetitive,
		Keywords: []string{"competitive", "competition", "competitor", "landscape", "market position"},
	},
	{
		Action:   ActionResearch,
		Keywords: []string{"comprehensive", "detailed", "full report", "in-depth"},
	},
	{
		Action:   ActionCampaign,
		Keywords: []string{"campaign", "promotion plan", "marketing strategy", "promotion strategy"},
	},
	{
		Action:   ActionDatasets,
		Keywords: []string{"dataset", "data source", "what data"},
	},
	{
		Action: ActionInsight,
		Keywords: []string{
			"marketing", "promotion", "campaign", "loyalty", "advertisement",
			"customer retention", "social media", "email marketing", "discount",
			"restaurant marketing", "cafe promotion", "menu pricing", "competitive analysis",
			"customer insights", "market research", "restaurant promotion",
		},
	},
}

// Classifier evaluates an immutable, ordered rule list.
type Classifier struct {
	rules []Rule
}

// New builds a classifier over a copy of rules. A nil slice selects DefaultRules.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	own := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		own[i] = Rule{Action: r.Action, Keywords: kws}
	}
	return &Classifier{rules: own}
}

// Classify returns the first matching marketing action, or general chat.
func (c *Classifier) Classify(message string) Decision {
	lower := strings.ToLower(message)
	for _, r := range c.rules {
		if r.Matches(lower) {
			return Decision{Category: CategoryMarketing, Action: r.Action}
		}
	}
	return Decision{Category: CategoryGeneralChat}
}

// Refine classifies a message already known to be a marketing request: a
// message matching no rule becomes an insight instead of general chat.
func (c *Classifier) Refine(message string) Decision {
	d := c.Classify(message)
	if !d.IsMarketing() {
		return Decision{Category: CategoryMarketing, Action: ActionInsight}
	}
	return d
}

var defaultClassifier = New(nil)

// Classify classifies message with DefaultRules.
func Classify(message string) Decision {
	return defaultClassifier.Classify(message)
}

// Package dispatch routes a named capability to the downstream server that
// implements it. The dispatch table is built once at start-up and never
// mutated; every call is bounded by a timeout and degrades to a canned
// payload for the tool's category when the server cannot answer.
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Protocol selects how a backend encodes a call.
type Protocol string

const (
	// ProtocolTool posts {parameters, user_id, context} to a tool server.
	ProtocolTool Protocol = "tool"
	// ProtocolQuery posts {query} to the marketing research service.
	ProtocolQuery Protocol = "query"
	// ProtocolFetch issues a body-less GET.
	ProtocolFetch Protocol = "fetch"
	// ProtocolRaw posts the parameters unchanged (gateway passthrough).
	ProtocolRaw Protocol = "raw"
	// ProtocolChat asks the language model for a completion.
	ProtocolChat Protocol = "chat"
)

// Server names outside the tool server list.
const (
	ServerMarketingResearch = "marketing_research"
	ServerOllama            = "ollama"
)

// Categories with a dedicated fallback payload.
const (
	CategoryGeospatial        = "geospatial"
	CategoryRestaurant        = "restaurant"
	CategoryMarketing         = "marketing"
	CategoryMarketingResearch = "marketing_research"
	CategoryChat              = "chat"
)

// GeneralChat is the capability name of a free-form model completion.
const GeneralChat = "general_chat"

// ServerSpec describes one downstream server.
type ServerSpec struct {
	Name        string   `json:"name"`
	PathName    string   `json:"path_name,omitempty"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	BaseURL     string   `json:"url"`
	HealthPath  string   `json:"-"`
	Tools       []string `json:"tools"`
}

// ToolDescriptor is the immutable routing entry of one capability.
type ToolDescriptor struct {
	Name     string        `json:"name"`
	Server   string        `json:"server"`
	Category string        `json:"category"`
	Endpoint string        `json:"endpoint"`
	Path     string        `json:"-"`
	Method   string        `json:"-"`
	Protocol Protocol      `json:"-"`
	Timeout  time.Duration `json:"-"`
}

type toolServer struct {
	name, path, category, description string
	tools                             []string
}

var toolServers = []toolServer{
	{"geospatial", "geospatial", "geospatial", "Location analysis and geographic insights",
		[]string{"analyze_location", "search_nearby", "calculate_distance", "get_demographics"}},
	{"restaurant", "restaurant", "restaurant", "Restaurant data and competitive analysis",
		[]string{"search_restaurants", "analyze_competition", "get_reviews", "menu_analysis"}},
	{"marketing", "marketing", "marketing", "Marketing campaigns and customer insights",
		[]string{"create_campaign", "analyze_performance", "target_audience", "content_generation"}},
	{"seo", "seo", "seo", "SEO analysis and content optimization",
		[]string{"keyword_analysis", "content_optimization", "backlink_analysis", "rank_tracking"}},
	{"accounting", "accounting", "accounting", "Financial management and reporting",
		[]string{"record_transaction", "generate_report", "calculate_metrics", "budget_analysis"}},
	{"inventory", "inventory", "inventory", "Inventory and supplier management",
		[]string{"track_inventory", "manage_suppliers", "order_management", "cost_analysis"}},
	{"workforce", "workforce", "workforce", "Staff scheduling and payroll",
		[]string{"schedule_staff", "track_hours", "calculate_payroll", "performance_metrics"}},
	{"customer_journey", "customer-journey", "analytics", "Customer journey tracking and segmentation",
		[]string{"track_journey", "analyze_touchpoints", "segment_customers", "predict_behavior"}},
	{"location_intelligence", "location-intelligence", "intelligence", "Market and site selection intelligence",
		[]string{"market_analysis", "site_selection", "trade_area_analysis", "foot_traffic"}},
	{"postgresql", "postgresql", "database", "Database queries and maintenance",
		[]string{"execute_query", "get_schema", "backup_data", "optimize_performance"}},
	{"slack", "slack", "communication", "Team messaging and notifications",
		[]string{"send_message", "create_channel", "get_users", "post_notification"}},
	{"duckduckgo", "duckduckgo", "research", "Web, news and image search",
		[]string{"web_search", "news_search", "image_search", "instant_answers"}},
}

// longRunningTools use the long timeout.
var longRunningTools = map[string]bool{
	"generate_report": true,
}

type researchAction struct {
	name, method, endpoint string
	long                   bool
}

var researchActions = []researchAction{
	{"insight", http.MethodPost, "api/marketing-insight", true},
	{"research", http.MethodPost, "api/comprehensive-research", true},
	{"competitive", http.MethodPost, "api/competitive-landscape", true},
	{"campaign", http.MethodPost, "api/marketing-campaign", true},
	{"datasets", http.MethodGet, "api/datasets", false},
}

// TableConfig carries the addresses and timeouts the table is built from.
type TableConfig struct {
	ToolsBaseURL     string
	MarketingURL     string
	OllamaURL        string
	ToolTimeout      time.Duration
	LongTimeout      time.Duration
	MarketingTimeout time.Duration
	ChatTimeout      time.Duration
}

// Table is the immutable capability registry. All accessors return copies.
type Table struct {
	servers     []ServerSpec
	serverIndex map[string]int
	tools       []ToolDescriptor
	toolIndex   map[string]int
	toolTimeout time.Duration
}

// NewTable builds the dispatch table of the tool servers, the marketing
// research actions and general chat.
func NewTable(cfg TableConfig) (*Table, error) {
	if cfg.ToolsBaseURL == "" || cfg.MarketingURL == "" || cfg.OllamaURL == "" {
		return nil, errors.New("dispatch: tools, marketing and ollama URLs are required")
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = 60 * time.Second
	}
	if cfg.MarketingTimeout <= 0 {
		cfg.MarketingTimeout = 60 * time.Second
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 30 * time.Second
	}

	t := &Table{
		serverIndex: make(map[string]int),
		toolIndex:   make(map[string]int),
		toolTimeout: cfg.ToolTimeout,
	}
	toolsBase := strings.TrimRight(cfg.ToolsBaseURL, "/")

	for _, s := range toolServers {
		spec := ServerSpec{
			Name:        s.name,
			PathName:    s.path,
			Category:    s.category,
			Description: s.description,
			BaseURL:     toolsBase,
			HealthPath:  "/" + s.path + "/health",
			Tools:       append([]string(nil), s.tools...),
		}
		for _, tool := range s.tools {
			timeout := cfg.ToolTimeout
			if longRunningTools[tool] {
				timeout = cfg.LongTimeout
			}
			endpoint := "tools/" + tool
			if err := t.addTool(ToolDescriptor{
				Name:     tool,
				Server:   s.name,
				Category: s.category,
				Endpoint: endpoint,
				Path:     "/" + s.path + "/" + endpoint,
				Method:   http.MethodPost,
				Protocol: ProtocolTool,
				Timeout:  timeout,
			}); err != nil {
				return nil, err
			}
		}
		t.addServer(spec)
	}

	research := ServerSpec{
		Name:        ServerMarketingResearch,
		Category:    CategoryMarketingResearch,
		Description: "Marketing research agent",
		BaseURL:     strings.TrimRight(cfg.MarketingURL, "/"),
		HealthPath:  "/health",
	}
	for _, a := range researchActions {
		timeout := cfg.ToolTimeout
		if a.long {
			timeout = cfg.MarketingTimeout
		}
		protocol := ProtocolQuery
		if a.method == http.MethodGet {
			protocol = ProtocolFetch
		}
		if err := t.addTool(ToolDescriptor{
			Name:     a.name,
			Server:   research.Name,
			Category: research.Category,
			Endpoint: a.endpoint,
			Path:     "/" + a.endpoint,
			Method:   a.method,
			Protocol: protocol,
			Timeout:  timeout,
		}); err != nil {
			return nil, err
		}
		research.Tools = append(research.Tools, a.name)
	}
	t.addServer(research)

	if err := t.addTool(ToolDescriptor{
		Name:     GeneralChat,
		Server:   ServerOllama,
		Category: CategoryChat,
		Endpoint: "api/generate",
		Path:     "/api/generate",
		Method:   http.MethodPost,
		Protocol: ProtocolChat,
		Timeout:  cfg.ChatTimeout,
	}); err != nil {
		return nil, err
	}
	t.addServer(ServerSpec{
		Name:        ServerOllama,
		Category:    CategoryChat,
		Description: "Language model for general chat",
		BaseURL:     strings.TrimRight(cfg.OllamaURL, "/"),
		HealthPath:  "/api/tags",
		Tools:       []string{GeneralChat},
	})

	return t, nil
}

func (t *Table) addServer(s ServerSpec) {
	t.serverIndex[s.Name] = len(t.servers)
	t.servers = append(t.servers, s)
}

func (t *Table) addTool(d ToolDescriptor) error {
	if _, dup := t.toolIndex[d.Name]; dup {
		return fmt.Errorf("dispatch: duplicate tool name %q", d.Name)
	}
	t.toolIndex[d.Name] = len(t.tools)
	t.tools = append(t.tools, d)
	return nil
}

// Lookup resolves a capability name.
func (t *Table) Lookup(name string) (ToolDescriptor, bool) {
	i, ok := t.toolIndex[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return t.tools[i], true
}

// Descriptors returns every tool descriptor in table order.
func (t *Table) Descriptors() []ToolDescriptor {
	return append([]ToolDescriptor(nil), t.tools...)
}

// Server returns the spec of a server by name.
func (t *Table) Server(name string) (ServerSpec, bool) {
	i, ok := t.serverIndex[name]
	if !ok {
		return ServerSpec{}, false
	}
	return copyServer(t.servers[i]), true
}

// ServerByPath returns the tool server whose URL path segment is path.
func (t *Table) ServerByPath(path string) (ServerSpec, bool) {
	for _, s := range t.servers {
		if s.PathName != "" && s.PathName == path {
			return copyServer(s), true
		}
	}
	return ServerSpec{}, false
}

// Servers returns every server in table order.
func (t *Table) Servers() []ServerSpec {
	out := make([]ServerSpec, len(t.servers))
	for i, s := range t.servers {
		out[i] = copyServer(s)
	}
	return out
}

// Categories returns the sorted distinct categories of the tool servers.
func (t *Table) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range t.servers {
		if s.PathName == "" || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		out = append(out, s.Category)
	}
	sort.Strings(out)
	return out
}

func copyServer(s ServerSpec) ServerSpec {
	s.Tools = append([]string(nil), s.Tools...)
	return s
}

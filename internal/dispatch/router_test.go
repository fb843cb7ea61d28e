package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khiwniti/beta-bitebase/internal/inference"
)

type fakeGenerator struct {
	resp *inference.OllamaResponse
	err  error
	got  inference.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req inference.GenerateRequest) (*inference.OllamaResponse, error) {
	f.got = req
	return f.resp, f.err
}

func newTestTable(t *testing.T, toolsURL, marketingURL string, timeout time.Duration) *Table {
	t.Helper()
	table, err := NewTable(TableConfig{
		ToolsBaseURL:     toolsURL,
		MarketingURL:     marketingURL,
		OllamaURL:        "http://127.0.0.1:1",
		ToolTimeout:      timeout,
		LongTimeout:      timeout,
		MarketingTimeout: timeout,
		ChatTimeout:      timeout,
	})
	require.NoError(t, err)
	return table
}

func newTestRouter(t *testing.T, toolsURL, marketingURL string, gen Generator) *Router {
	t.Helper()
	table := newTestTable(t, toolsURL, marketingURL, 200*time.Millisecond)
	router, err := NewRouter(table, DefaultBackends(table, nil, gen))
	require.NoError(t, err)
	return router
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func decodePayload(t *testing.T, r Result) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Payload, &out))
	return out
}

func TestDispatch_UnknownTool(t *testing.T) {
	router := newTestRouter(t, closedServerURL(t), closedServerURL(t), &fakeGenerator{})

	res := router.Dispatch(context.Background(), "make_coffee", nil, "u1", nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindUnknownTool, res.ErrorKind)
	assert.Equal(t, "unknown tool", res.Error)
	assert.Nil(t, res.Payload)
	assert.Empty(t, res.Source)
	assert.ErrorIs(t, res.Err(), ErrUnknownTool)
	assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
}

func TestDispatch_LivePassesPayloadThrough(t *testing.T) {
	const body = `{"score": 9.1,   "location":"Siam"}`
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, closedServerURL(t), &fakeGenerator{})
	res := router.Dispatch(context.Background(), "analyze_location",
		map[string]interface{}{"location": "Siam"}, "u1", map[string]interface{}{"page": "map"})

	require.True(t, res.Success)
	assert.Equal(t, SourceLive, res.Source)
	assert.Equal(t, ErrorKindNone, res.ErrorKind)
	assert.Equal(t, "geospatial", res.Server)
	assert.Equal(t, body, string(res.Payload))
	assert.Equal(t, "/geospatial/tools/analyze_location", gotPath)
	assert.Equal(t, "u1", gotBody["user_id"])
	assert.Equal(t, map[string]interface{}{"location": "Siam"}, gotBody["parameters"])
	assert.Equal(t, map[string]interface{}{"page": "map"}, gotBody["context"])
}

func TestDispatch_TimeoutServesCategoryFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, closedServerURL(t), &fakeGenerator{})
	start := time.Now()
	res := router.Dispatch(context.Background(), "analyze_location", map[string]interface{}{"location": "Bangkok"}, "u1", nil)

	assert.Less(t, time.Since(start), time.Second)
	require.True(t, res.Success)
	assert.Equal(t, SourceFallback, res.Source)
	assert.True(t, res.IsFallback())
	assert.Equal(t, ErrorKindDownstreamUnavailable, res.ErrorKind)
	assert.NoError(t, res.Err())

	payload := decodePayload(t, res)
	assert.Equal(t, "Bangkok", payload["location"])
	analysis := payload["analysis"].(map[string]interface{})
	assert.Equal(t, 8.5, analysis["score"])
	assert.Equal(t, "High", analysis["foot_traffic"])
	assert.Len(t, payload["recommendations"], 3)
}

func TestDispatch_FallbackShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	router := newTestRouter(t, srv.URL, srv.URL, &fakeGenerator{err: errors.New("model down")})
	ctx := context.Background()

	restaurant := decodePayload(t, router.Dispatch(ctx, "search_restaurants", nil, "u1", nil))
	assert.EqualValues(t, 1, restaurant["total_found"])
	assert.Equal(t, "5 km", restaurant["search_radius"])
	first := restaurant["restaurants"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Sample Restaurant", first["name"])

	marketing := decodePayload(t, router.Dispatch(ctx, "create_campaign", nil, "u1", nil))
	assert.Len(t, marketing["campaign_suggestions"], 3)
	assert.Equal(t, "25-35", marketing["target_demographics"].(map[string]interface{})["age_group"])

	seo := decodePayload(t, router.Dispatch(ctx, "keyword_analysis", nil, "u1", nil))
	assert.Equal(t, "Mock response from seo server", seo["message"])
	assert.Equal(t, "tools/keyword_analysis", seo["endpoint"])
	assert.Equal(t, "success", seo["status"])

	research := decodePayload(t, router.Dispatch(ctx, "research", map[string]interface{}{"query": "q"}, "u1", nil))
	assert.NotEmpty(t, research["response"])
	for _, key := range []string{"charts", "sentiment", "keywords", "datasets"} {
		assert.Contains(t, research, key)
	}

	chat := router.Dispatch(ctx, GeneralChat, map[string]interface{}{"prompt": "User: hello\nAssistant:"}, "u1", nil)
	assert.Equal(t, SourceFallback, chat.Source)
	assert.Equal(t, inference.FallbackModel, chat.StringField("model"))
	assert.Contains(t, chat.StringField("response"), "BiteBase AI restaurant consultant")
}

func TestDispatch_Unreachable(t *testing.T) {
	router := newTestRouter(t, closedServerURL(t), closedServerURL(t), &fakeGenerator{})
	res := router.Dispatch(context.Background(), "web_search", nil, "u1", nil)
	require.True(t, res.Success)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "Mock response from duckduckgo server", res.StringField("message"))
}

func TestDispatch_InvalidJSONIsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, srv.URL, &fakeGenerator{})
	res := router.Dispatch(context.Background(), "get_reviews", nil, "u1", nil)
	assert.Equal(t, SourceFallback, res.Source)
}

func TestDispatch_MarketingResearch(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		var body struct {
			Query string `json:"query"`
		}
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		gotQuery = body.Query
		_, _ = io.WriteString(w, `{"response":"ok","charts":{"a":1}}`)
	}))
	defer srv.Close()

	router := newTestRouter(t, closedServerURL(t), srv.URL, &fakeGenerator{})
	ctx := context.Background()

	res := router.Dispatch(ctx, "competitive", map[string]interface{}{"query": "thai food in Bangkok"}, "u1", nil)
	assert.Equal(t, SourceLive, res.Source)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/competitive-landscape", gotPath)
	assert.Equal(t, "thai food in Bangkok", gotQuery)
	assert.Equal(t, "ok", res.StringField("response"))

	res = router.Dispatch(ctx, "datasets", nil, "u1", nil)
	assert.Equal(t, SourceLive, res.Source)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/api/datasets", gotPath)
}

func TestDispatch_GeneralChat(t *testing.T) {
	gen := &fakeGenerator{resp: &inference.OllamaResponse{Model: "llama2", Response: "Sure.", Done: true}}
	router := newTestRouter(t, closedServerURL(t), closedServerURL(t), gen)

	res := router.Dispatch(context.Background(), GeneralChat, map[string]interface{}{"prompt": "p", "model": "mistral"}, "u1", nil)
	assert.Equal(t, SourceLive, res.Source)
	assert.Equal(t, "Sure.", res.StringField("response"))
	assert.Equal(t, "p", gen.got.Prompt)
	assert.Equal(t, "mistral", gen.got.Model)
}

func TestCallServer(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"done":true}`)
	}))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, closedServerURL(t), &fakeGenerator{})
	res, err := router.CallServer(context.Background(), "geospatial", "analyze", map[string]interface{}{"lat": 13.7})
	require.NoError(t, err)
	assert.Equal(t, SourceLive, res.Source)
	assert.Equal(t, "/geospatial/analyze", gotPath)
	assert.Equal(t, 13.7, gotBody["lat"])

	_, err = router.CallServer(context.Background(), "nowhere", "analyze", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestCallServer_FallbackReadsNestedLocation(t *testing.T) {
	router := newTestRouter(t, closedServerURL(t), closedServerURL(t), &fakeGenerator{})
	res, err := router.CallServer(context.Background(), "geospatial", "search",
		map[string]interface{}{"parameters": map[string]interface{}{"location": "Chiang Mai"}})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "Chiang Mai", res.StringField("location"))
}

func TestNewRouter_RequiresEveryBackend(t *testing.T) {
	table := newTestTable(t, "http://tools", "http://marketing", time.Second)
	backends := DefaultBackends(table, nil, &fakeGenerator{})
	delete(backends, "slack")

	_, err := NewRouter(table, backends)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "slack"))
}

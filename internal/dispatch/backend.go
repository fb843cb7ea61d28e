package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/khiwniti/beta-bitebase/internal/inference"
)

const maxPayloadSize = 8 << 20

// Call is the input of one dispatch.
type Call struct {
	Parameters map[string]interface{}
	UserID     string
	Context    map[string]interface{}
}

// Backend performs the network call for the descriptors of one server.
type Backend interface {
	Call(ctx context.Context, desc ToolDescriptor, call Call) (json.RawMessage, error)
}

// StatusError is a non-2xx reply from a downstream server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream returned status %d", e.StatusCode)
}

// HTTPBackend talks JSON over HTTP to one base URL.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend for baseURL. A nil client uses a default
// one; timeouts come from the dispatch context.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Call sends the request encoded per the descriptor's protocol and returns
// the response body unchanged.
func (b *HTTPBackend) Call(ctx context.Context, desc ToolDescriptor, call Call) (json.RawMessage, error) {
	var body io.Reader
	switch desc.Protocol {
	case ProtocolTool:
		params := call.Parameters
		if params == nil {
			params = map[string]interface{}{}
		}
		data, err := json.Marshal(map[string]interface{}{
			"parameters": params,
			"user_id":    call.UserID,
			"context":    call.Context,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool call: %w", err)
		}
		body = bytes.NewReader(data)
	case ProtocolQuery:
		query, _ := call.Parameters["query"].(string)
		data, err := json.Marshal(map[string]string{"query": query})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query: %w", err)
		}
		body = bytes.NewReader(data)
	case ProtocolRaw:
		data, err := json.Marshal(call.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		body = bytes.NewReader(data)
	case ProtocolFetch:
	default:
		return nil, fmt.Errorf("http backend cannot serve protocol %q", desc.Protocol)
	}

	req, err := http.NewRequestWithContext(ctx, desc.Method, b.baseURL+desc.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("response from %s is not JSON", desc.Server)
	}
	return data, nil
}

// Generator is the model client used by ChatBackend.
type Generator interface {
	Generate(ctx context.Context, req inference.GenerateRequest) (*inference.OllamaResponse, error)
}

// ChatBackend serves general chat from a language model.
type ChatBackend struct {
	gen Generator
}

// NewChatBackend wraps a model client.
func NewChatBackend(gen Generator) *ChatBackend {
	return &ChatBackend{gen: gen}
}

// Call generates a completion for the prompt parameter.
func (b *ChatBackend) Call(ctx context.Context, desc ToolDescriptor, call Call) (json.RawMessage, error) {
	if desc.Protocol != ProtocolChat {
		return nil, fmt.Errorf("chat backend cannot serve protocol %q", desc.Protocol)
	}
	prompt, _ := call.Parameters["prompt"].(string)
	model, _ := call.Parameters["model"].(string)

	resp, err := b.gen.Generate(ctx, inference.GenerateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

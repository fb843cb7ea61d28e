package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultModel   = "llama2"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// OllamaConfig holds Ollama client configuration
type OllamaConfig struct {
	URL          string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaClient is an Ollama inference client
type OllamaClient struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// GenerateRequest is a single non-streaming completion request
type GenerateRequest struct {
	Model  string
	Prompt string
}

// OllamaResponse represents an Ollama /api/generate response
type OllamaResponse struct {
	Model       string `json:"model"`
	Response    string `json:"response"`
	Done        bool   `json:"done"`
	PromptCount int    `json:"prompt_eval_count"`
	EvalCount   int    `json:"eval_count"`
}

// StatusError reports a non-2xx reply from the model server
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.StatusCode, e.Body)
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("ollama URL is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OllamaClient{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		defaultModel: model,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// DefaultModelName returns the model used when a request names none
func (c *OllamaClient) DefaultModelName() string {
	return c.defaultModel
}

// Generate sends a completion request to Ollama
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*OllamaResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":  model,
		"prompt": req.Prompt,
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var ollamaResp OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if ollamaResp.Model == "" {
		ollamaResp.Model = model
	}

	return &ollamaResp, nil
}

// ListModels returns the names of locally available models
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Health checks if Ollama is healthy
func (c *OllamaClient) Health(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

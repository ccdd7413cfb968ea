// Package llm is a minimal client for an OpenAI-compatible chat completions
// endpoint. Works with OpenAI, Azure OpenAI, Together AI, local Ollama /v1,
// etc. Without an API key the client runs in mock mode and returns a clearly
// marked deterministic response, so planning and tests work offline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuongbtq/agent-core/internal/domain"
)

// Config holds client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Request is a single completion request. Model, MaxTokens and Temperature
// override the client defaults when non-zero.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Completion is the model's answer plus token accounting.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output tokens.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Client calls the chat completions API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string

	maxTokens   int
	temperature float64
}

// NewClient creates a new completion client
func NewClient(cfg *Config) *Client {
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// MockMode reports whether the client answers locally instead of calling the
// API.
func (c *Client) MockMode() bool {
	return c.apiKey == ""
}

// Complete returns the model's completion for the given prompts.
func (c *Client) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if c.MockMode() {
		return c.mockComplete(req), nil
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	payload := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}

	if maxTokens := firstPositive(req.MaxTokens, c.maxTokens); maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}
	if temperature := firstPositiveFloat(req.Temperature, c.temperature); temperature > 0 {
		payload["temperature"] = temperature
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Network failures and timeouts are transient.
		return nil, domain.NewRetryableError(fmt.Errorf("failed to call completion API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("completion API returned status %d: %s", resp.StatusCode, string(body))
		if transientStatus(resp.StatusCode) {
			return nil, domain.NewRetryableError(err)
		}
		return nil, err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &Completion{
		Content:      result.Choices[0].Message.Content,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

// mockComplete produces a deterministic placeholder answer. Token counts are
// estimated at four characters per token so cost accounting stays exercised.
func (c *Client) mockComplete(req *Request) *Completion {
	content := fmt.Sprintf("[mock completion] no credentials configured; echoing request: %s", req.UserPrompt)

	return &Completion{
		Content:      content,
		InputTokens:  estimateTokens(req.SystemPrompt) + estimateTokens(req.UserPrompt),
		OutputTokens: estimateTokens(content),
	}
}

func estimateTokens(text string) int {
	return len(text) / 4
}

// transientStatus reports whether the upstream status is worth retrying:
// rate limiting and server-side failures. Other client errors (bad model,
// malformed request) will not succeed on a retry.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

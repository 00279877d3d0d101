// Package client speaks the OpenAI-compatible chat-completions protocol used
// by every supported provider. One implementation covers deepseek, openai
// and local (ollama-style) endpoints through per-provider presets.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"veridian/internal/logger"
	"veridian/internal/netutil"
)

// Options shape a single completion request.
type Options struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

type preset struct {
	baseURL     string
	model       string
	jsonCapable bool
	displayName string
}

var presets = map[string]preset{
	"deepseek": {
		baseURL:     "https://api.deepseek.com/v1",
		model:       "deepseek-chat",
		jsonCapable: true,
		displayName: "DeepSeek",
	},
	"openai": {
		baseURL:     "https://api.openai.com/v1",
		model:       "gpt-4o",
		jsonCapable: true,
		displayName: "OpenAI",
	},
	"local": {
		baseURL:     "http://localhost:11434/v1",
		model:       "qwen2.5-coder:14b",
		jsonCapable: false,
		displayName: "Local LLM",
	},
}

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Proxy    string
}

type Client struct {
	provider    string
	apiKey      string
	baseURL     string
	model       string
	jsonCapable bool
	displayName string
	httpClient  *http.Client
	maxRetries  int
}

func New(cfg Config) (*Client, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (supported: deepseek, openai, local)", cfg.Provider)
	}
	if cfg.APIKey == "" && cfg.Provider != "local" {
		return nil, fmt.Errorf("API key is required for provider %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = p.model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient, err := netutil.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	if cfg.Proxy != "" {
		logger.Debug("Using proxy: %s", cfg.Proxy)
	}

	return &Client{
		provider:    cfg.Provider,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		jsonCapable: p.jsonCapable,
		displayName: p.displayName,
		httpClient:  httpClient,
		maxRetries:  3,
	}, nil
}

// Send issues one chat completion and returns the assistant text.
func (c *Client) Send(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}

	messages := make([]Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: userPrompt})

	reqBody := ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode && c.jsonCapable {
		reqBody.ResponseFormat = map[string]interface{}{"type": "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.sendWithRetry(ctx, jsonData)
}

func (c *Client) Name() string {
	return fmt.Sprintf("%s (%s)", c.displayName, c.model)
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) sendWithRetry(ctx context.Context, jsonData []byte) (string, error) {
	var lastErr error
	baseDelay := 2 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		content, err := c.doRequest(ctx, jsonData)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("exceeded max retries (%d), last error: %w", c.maxRetries, lastErr)
}

func isRetryableError(err error) bool {
	if _, ok := err.(*NonRetryableError); ok {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "context canceled") ||
		strings.Contains(errStr, "context deadline exceeded") {
		return false
	}
	return true
}

func (c *Client) doRequest(ctx context.Context, jsonData []byte) (string, error) {
	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := string(body)
		if len(errMsg) > 4096 {
			errMsg = errMsg[:4096] + "...(truncated)"
		}
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return "", fmt.Errorf("API temporary error status %d: %s", resp.StatusCode, errMsg)
		}
		return "", &NonRetryableError{StatusCode: resp.StatusCode, Message: errMsg}
	}

	var apiResp ChatCompletionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		msg := fmt.Sprintf("%s (type: %s, code: %s)", apiResp.Error.Message, apiResp.Error.Type, apiResp.Error.Code)
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "rate") || strings.Contains(lower, "limit") || strings.Contains(lower, "429") {
			return "", fmt.Errorf("API temporary error: %s", msg)
		}
		return "", &NonRetryableError{StatusCode: resp.StatusCode, Message: msg}
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	logger.Debug("📊 Token usage: prompt=%d, completion=%d, total=%d",
		apiResp.Usage.PromptTokens,
		apiResp.Usage.CompletionTokens,
		apiResp.Usage.TotalTokens)

	return apiResp.Choices[0].Message.Content, nil
}

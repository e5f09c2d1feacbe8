package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"cyris/internal/models"
	"cyris/internal/utils"
)

const (
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
	openRouterTimeout        = 60 * time.Second
	maxErrorBodyBytes        = 4 << 10
)

// OpenRouterConfig holds settings for the OpenAI-compatible chat upstream
type OpenRouterConfig struct {
	BaseURL string
	APIKey  string
	Referer string
	Title   string
	Timeout time.Duration
	Client  *http.Client
}

// OpenRouterClient calls chat completions on OpenRouter (or any
// OpenAI-compatible endpoint).
type OpenRouterClient struct {
	auth    Authenticator
	client  *http.Client
	baseURL string
	logger  *utils.Logger
}

// NewOpenRouterClient creates a new chat completion client
func NewOpenRouterClient(cfg OpenRouterConfig) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for OpenRouter client")
	}

	baseURL := openRouterDefaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	auth := NewSimpleAPIKeyAuth(cfg.APIKey, "Authorization", "Bearer ").
		WithHeader("HTTP-Referer", cfg.Referer).
		WithHeader("X-Title", cfg.Title)

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = openRouterTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &OpenRouterClient{
		auth:    auth,
		client:  client,
		baseURL: baseURL,
		logger:  utils.NewLogger("openrouter"),
	}, nil
}

// Complete sends a chat completion request and returns the first choice's text.
// Rate-limit and server errors are retried once.
func (c *OpenRouterClient) Complete(ctx context.Context, modelID string, messages []models.Message) (string, error) {
	reply, err := c.complete(ctx, modelID, messages)
	if err != nil && utils.IsRecoverableError(err) && ctx.Err() == nil {
		c.logger.Warn("Retrying upstream call", "model", modelID, "error", err)
		reply, err = c.complete(ctx, modelID, messages)
	}
	return reply, err
}

func (c *OpenRouterClient) complete(ctx context.Context, modelID string, messages []models.Message) (string, error) {
	start := time.Now()

	req := ChatRequest{Model: modelID, Messages: make([]ChatMessage, 0, len(messages))}
	for _, m := range messages {
		req.Messages = append(req.Messages, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	authCtx, err := c.auth.Authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", err)
	}
	if err := authCtx.ApplyToRequest(ctx, httpReq); err != nil {
		return "", fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &StatusError{Code: resp.StatusCode, Body: string(errBody)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if !gjson.ValidBytes(respBody) {
		return "", fmt.Errorf("malformed upstream response")
	}
	parsed := gjson.ParseBytes(respBody)
	if msg := parsed.Get("error.message"); msg.Exists() {
		return "", fmt.Errorf("upstream error: %s", msg.String())
	}
	content := parsed.Get("choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("upstream response has no choices")
	}

	c.logger.Debug("Upstream call completed",
		"model", modelID,
		"latency_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", parsed.Get("usage.prompt_tokens").Int(),
		"completion_tokens", parsed.Get("usage.completion_tokens").Int(),
	)
	return content.String(), nil
}

// Close cleans up resources
func (c *OpenRouterClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

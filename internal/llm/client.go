// Package llm implements the client for the OpenAI-compatible
// judgment/generation service the pipeline scores and personalizes
// with.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/extcall"
)

// Client talks to a chat-completions endpoint.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Client. A nil httpClient falls back to
// http.DefaultClient.
func New(cfg config.LLMConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// CompletionOptions tune one completion call. Temperature and
// MaxTokens pass through to the service; Timeout bounds the call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts the prompt as a single user message and returns the
// trimmed assistant reply.
func (c *Client) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("llm client misconfigured: api key not set")
	}

	payload := completionRequest{
		Model:       c.cfg.Model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	body, err := extcall.PostJSON(ctx, c.httpClient, endpoint, payload, headers, opts.Timeout)
	if err != nil {
		return "", fmt.Errorf("completion call: %w", err)
	}

	var resp completionResponse
	if err := extcall.DecodeJSON(body, &resp); err != nil {
		return "", fmt.Errorf("completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &extcall.MalformedError{Err: fmt.Errorf("no choices in completion response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Config exposes the client configuration to callers that derive
// prompt limits or timeouts from it.
func (c *Client) Config() config.LLMConfig {
	return c.cfg
}

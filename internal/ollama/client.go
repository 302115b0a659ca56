// Package ollama is the HTTP client for an Ollama-compatible LLM endpoint.
package ollama

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
)

const (
	defaultBaseURL    = "http://localhost:11434"
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 3
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets how many attempts a chat call makes before giving up.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithCache enables an LRU response cache of the given size. Identical
// chat requests (same model, temperature and messages) are served from
// memory instead of the endpoint.
func WithCache(size int) ClientOption {
	return func(c *Client) {
		if size <= 0 {
			return
		}
		cache, err := lru.New[string, *domain.ChatResponse](size)
		if err != nil {
			return
		}
		c.cache = cache
	}
}

// WithLogger sets the logger for retry warnings.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to an Ollama-compatible endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	// backoffUnit scales retry backoff; tests shrink it.
	backoffUnit time.Duration
	cache       *lru.Cache[string, *domain.ChatResponse]
	logger      *slog.Logger
}

var _ ports.ChatClient = (*Client)(nil)

// New creates a client for the endpoint at baseURL. An empty baseURL means
// the local default.
func New(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxRetries:  defaultMaxRetries,
		backoffUnit: time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends one conversation and returns the model's answer. Transport
// errors and 5xx answers are retried with exponential backoff; 4xx answers
// fail immediately.
func (c *Client) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	var key string
	if c.cache != nil {
		key = cacheKey(req)
		if resp, ok := c.cache.Get(key); ok {
			out := *resp
			out.Cached = true
			return &out, nil
		}
	}

	wire := chatRequest{
		Model:   req.Model,
		Stream:  false,
		Options: &chatOptions{Temperature: req.Temperature},
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, wireMsg{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * c.backoffUnit
			c.logger.Warn("retrying chat request",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, retryable, err := c.doChat(ctx, body)
		if err == nil {
			if c.cache != nil {
				// Cache a private copy so a caller mutating the
				// returned response cannot poison later hits.
				stored := *resp
				c.cache.Add(key, &stored)
			}
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("chat request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) doChat(ctx context.Context, body []byte) (resp *domain.ChatResponse, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, httpResp.StatusCode >= 500, parseError(httpResp.StatusCode, respBody)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal response: %w", err)
	}

	return &domain.ChatResponse{
		Model:            result.Model,
		Content:          result.Message.Content,
		PromptTokens:     result.PromptEvalCount,
		CompletionTokens: result.EvalCount,
	}, false, nil
}

// Tags lists the models the endpoint serves.
func (c *Client) Tags(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseError(httpResp.StatusCode, respBody)
	}

	var result tagsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return result.Models, nil
}

// HasModel reports whether the endpoint serves the named model. A bare name
// matches its ":latest" tag.
func (c *Client) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := c.Tags(ctx)
	if err != nil {
		return false, err
	}

	want := strings.TrimSuffix(model, ":latest")
	for _, m := range models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == want {
			return true, nil
		}
	}
	return false, nil
}

func parseError(status int, body []byte) error {
	var e Error
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		e.StatusCode = status
		return &e
	}
	return fmt.Errorf("endpoint error (status %d): %s", status, string(body))
}

func cacheKey(req *domain.ChatRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%v|", req.Model, req.Temperature)
	for _, m := range req.Messages {
		fmt.Fprintf(h, "%s\x00%s\x00", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Package speech talks to a whisper-style speech engine over HTTP.
// The engine accepts multipart audio uploads and answers with JSON.
// Speaker diarization is optional: deployments without a diarization
// model answer 501, which callers should treat as a signal to fall
// back to a single-speaker transcript.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
)

const (
	defaultBaseURL = "http://localhost:8081"
	defaultTimeout = 300 * time.Second
)

// ErrDiarizationUnavailable reports that the engine does not offer
// speaker diarization.
var ErrDiarizationUnavailable = errors.New("diarization unavailable")

// Error is a failure answer from the speech engine.
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("speech engine: %s (status %d)", e.Message, e.StatusCode)
}

// ClientOption configures the speech client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. Transcription of long
// recordings can take minutes, so the default is generous.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger routes client logs to the given logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// Client calls the speech engine's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.SpeechClient = (*Client)(nil)

// New builds a speech client for the engine at baseURL.
func New(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads audio and returns the engine's transcript with
// timed segments.
func (c *Client) Transcribe(ctx context.Context, req *domain.TranscribeRequest) (*domain.Transcription, error) {
	body, err := c.postAudio(ctx, "/v1/transcribe", req.Audio, req.FileName, req.Model)
	if err != nil {
		return nil, err
	}

	var out domain.Transcription
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding transcription: %w", err)
	}
	return &out, nil
}

// Diarize uploads audio and returns speaker-attributed segments. When
// the engine answers 501 the returned error wraps
// ErrDiarizationUnavailable.
func (c *Client) Diarize(ctx context.Context, req *domain.DiarizeRequest) (*domain.Diarization, error) {
	body, err := c.postAudio(ctx, "/v1/diarize", req.Audio, req.FileName, req.Model)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotImplemented {
			return nil, fmt.Errorf("%w: %s", ErrDiarizationUnavailable, apiErr.Message)
		}
		return nil, err
	}

	var out domain.Diarization
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding diarization: %w", err)
	}
	return &out, nil
}

// Health reports whether the engine answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling speech engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return parseError(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) postAudio(ctx context.Context, path string, audio []byte, fileName, model string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if model != "" {
		if err := w.WriteField("model", model); err != nil {
			return nil, fmt.Errorf("building upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("speech engine request failed",
			slog.String("path", path),
			slog.Any("error", err))
		return nil, fmt.Errorf("calling speech engine: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("speech engine returned an error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, parseError(resp.StatusCode, body)
	}
	return body, nil
}

func parseError(status int, body []byte) error {
	apiErr := &Error{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

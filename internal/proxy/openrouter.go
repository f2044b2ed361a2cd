package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/quickdeliver/qdsupport/internal/metrics"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond

	// DefaultModel is used when a request names no model.
	DefaultModel       = "anthropic/claude-3.5-sonnet"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 800
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("llm provider unavailable")

// ErrEmptyResponse is returned when a completion has no choices.
var ErrEmptyResponse = errors.New("completion has no choices")

// Client communicates with the OpenRouter API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
	breaker    *gobreaker.CircuitBreaker[*ChatResponse]
}

// BreakerSettings tunes the circuit breaker around completion calls.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultBreakerSettings trips after 5 consecutive failures and lets one request through again after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// NewClient creates an OpenRouter client with the given API key.
func NewClient(apiKey string) *Client {
	return NewClientWithSettings(apiKey, defaultBaseURL, DefaultBreakerSettings())
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClientWithSettings(apiKey, baseURL, DefaultBreakerSettings())
}

func NewClientWithSettings(apiKey, baseURL string, bs BreakerSettings) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		referer: "https://github.com/quickdeliver/qdsupport",
		title:   "QuickDeliver Support",
	}
	c.breaker = gobreaker.NewCircuitBreaker[*ChatResponse](gobreaker.Settings{
		Name:    "openrouter",
		Timeout: bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Complete sends a non-streaming chat completion and returns the text of the
// first choice. Missing model and sampling settings use the package defaults.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.TopP == 0 {
		req.TopP = 1
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*ChatResponse, error) {
		return c.Chat(ctx, req)
	})
	metrics.LLMLatency.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.LLMRequests.WithLabelValues("circuit_open").Inc()
		return "", ErrUnavailable
	case err != nil:
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return "", err
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return "", ErrEmptyResponse
	}
	metrics.LLMRequests.WithLabelValues("ok").Inc()
	return resp.Choices[0].Message.Content, nil
}

// Chat sends a chat completion request, retrying on HTTP 429 with
// exponential backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		resp, err := c.doChat(ctx, body)
		if err == nil {
			return resp, nil
		}

		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (c *Client) doChat(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimitError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && ae.Error.Message != "" {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, ae.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding completion: %w", err)
	}
	return &out, nil
}

// ListModels returns the list of available models from OpenRouter.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}

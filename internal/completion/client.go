// Package completion sends prompts to a Gemini-style generateContent endpoint
// with bounded retries, Retry-After aware backoff, and an optional fallback endpoint.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBodyBytes  = 4 << 10
)

// Config carries the endpoint and retry settings for a Client.
type Config struct {
	PrimaryEndpoint  string
	FallbackEndpoint string // empty disables fallback
	APIKey           string
	MaxAttempts      int           // attempts against the primary endpoint
	BaseBackoff      time.Duration // base unit for exponential backoff and the jitter ceiling
	HTTPTimeout      time.Duration
}

// FallbackAttempts is the attempt budget for the fallback endpoint.
func (c Config) FallbackAttempts() int {
	return max(2, c.MaxAttempts/2)
}

// Doer is the subset of *http.Client used by the Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the logger used to report attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) { c.http = doer }
}

// WithJitter replaces the random jitter source. It receives the jitter ceiling.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(c *Client) { c.jitter = fn }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces the time source used for HTTP-date Retry-After values.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) { c.now = fn }
}

// Client executes completion requests. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	cfg    Config
	http   Doer
	logger *slog.Logger
	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// New constructs a Client from cfg, applying defaults for unset budgets.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.PrimaryEndpoint) == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger: slog.Default().With("component", "completion"),
		jitter: uniformJitter,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends prompt to the primary endpoint and, when its retryable budget
// is exhausted, to the fallback endpoint. It returns the raw response body or a *Failure.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(newGenerateRequest(prompt))
	if err != nil {
		return "", &Failure{Kind: KindTerminal, Endpoint: redact(c.cfg.PrimaryEndpoint), Err: err}
	}

	primary := c.attemptLoop(ctx, appendAPIKey(c.cfg.PrimaryEndpoint, c.cfg.APIKey), body, c.cfg.MaxAttempts)
	switch primary.Status() {
	case StatusSuccess:
		return primary.Text, nil
	case StatusTerminalFailure:
		return "", primary.Failure
	}

	if strings.TrimSpace(c.cfg.FallbackEndpoint) == "" {
		return "", primary.Failure
	}

	c.logger.Warn("primary endpoint exhausted retries, trying fallback",
		"status", primary.Failure.Status,
		"fallback", redact(c.cfg.FallbackEndpoint),
		"attempts", c.cfg.FallbackAttempts(),
	)
	fallbackCounter.Inc()

	fallback := c.attemptLoop(ctx, appendAPIKey(c.cfg.FallbackEndpoint, c.cfg.APIKey), body, c.cfg.FallbackAttempts())
	if fallback.Status() == StatusSuccess {
		return fallback.Text, nil
	}
	return "", fallback.Failure
}

// attemptLoop runs up to attempts requests against url. Only retryable failures
// are retried; the last failure is returned once the budget is spent.
func (c *Client) attemptLoop(ctx context.Context, url string, body []byte, attempts int) Result {
	endpoint := redact(url)
	var last *Failure
	for attempt := 1; attempt <= attempts; attempt++ {
		text, failure := c.do(ctx, url, body)
		if failure == nil {
			recordAttempt(endpoint, "success")
			return Result{Text: text}
		}
		failure.Endpoint = endpoint
		failure.Attempts = attempt
		recordAttempt(endpoint, failure.Kind.String())

		c.logger.Error("completion request failed",
			"endpoint", endpoint,
			"status", failure.Status,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", failure.Err,
		)

		if !failure.Retryable() {
			return Result{Failure: failure}
		}
		last = failure
		if attempt >= attempts {
			break
		}

		delay := computeBackoff(failure.RetryAfter, c.cfg.BaseBackoff, attempt, c.now()) + c.jitter(c.cfg.BaseBackoff)
		backoffHistogram.Observe(delay.Seconds())
		c.logger.Warn("transient completion failure, backing off",
			"status", failure.Status,
			"next_attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return Result{Failure: &Failure{Kind: KindTerminal, Endpoint: endpoint, Attempts: attempt, Err: err}}
		}
	}
	return Result{Failure: last}
}

// do issues one request. A nil Failure means success.
func (c *Client) do(ctx context.Context, url string, body []byte) (string, *Failure) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &Failure{Kind: KindTerminal, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Failure{Kind: KindTerminal, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		kind := KindTerminal
		if IsRetryableStatus(resp.StatusCode) {
			kind = KindRetryable
		}
		return "", &Failure{
			Kind:       kind,
			Status:     resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       string(snippet),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Failure{Kind: KindTerminal, Status: resp.StatusCode, Err: err}
	}
	return string(data), nil
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Role  string        `json:"role"`
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

func newGenerateRequest(prompt string) generateRequest {
	return generateRequest{Contents: []requestContent{{
		Role:  "user",
		Parts: []requestPart{{Text: prompt}},
	}}}
}

// appendAPIKey adds the key query parameter unless the URL is blank or already carries one.
func appendAPIKey(baseURL, apiKey string) string {
	if strings.TrimSpace(baseURL) == "" || strings.Contains(baseURL, "key=") {
		return baseURL
	}
	delimiter := "?"
	if strings.Contains(baseURL, "?") {
		delimiter = "&"
	}
	return baseURL + delimiter + "key=" + apiKey
}

// redact drops the query string so keys never reach logs or metric labels.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

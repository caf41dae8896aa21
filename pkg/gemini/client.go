package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bishleshok-ai/bishleshok/internal/resilience"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	// MaxRetries is the total number of attempts per call.
	MaxRetries = 5

	// DefaultContentModel extracts records and answers questions.
	DefaultContentModel = "gemini-2.5-flash-preview-09-2025"
	// DefaultTTSModel produces spoken confirmations.
	DefaultTTSModel = "gemini-2.5-flash-preview-tts"
)

// RetryableStatuses are the HTTP statuses that are retried while attempts
// remain. Every other non-2xx status fails immediately.
var RetryableStatuses = resilience.NewStatusSet(http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable)

// Client calls the generative content endpoint.
type Client interface {
	// Call POSTs payload to endpoint with retry and returns the raw JSON body
	// of the first 2xx response.
	Call(ctx context.Context, endpoint string, payload any) (json.RawMessage, error)
	// GenerateContent runs generateContent on model.
	GenerateContent(ctx context.Context, model string, req *Request) (*Response, error)
}

// RetryNotice describes a retry that is about to happen.
type RetryNotice struct {
	Attempt int           // 1-based attempt that failed
	Status  int           // HTTP status, 0 for a network fault
	Delay   time.Duration // wait before the next attempt
	Err     error
}

// Message renders the notice for a human.
func (n RetryNotice) Message() string {
	secs := int(math.Round(n.Delay.Seconds()))
	if n.Status == 0 {
		return fmt.Sprintf("Network error. Retrying in %ds...", secs)
	}
	return fmt.Sprintf("Server error (%d). Retrying in %ds...", n.Status, secs)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry schedule.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *httpClient) {
		c.retry.Sleep = fn
	}
}

// WithRetryNotifier registers a callback run before every retry sleep.
func WithRetryNotifier(fn func(RetryNotice)) Option {
	return func(c *httpClient) {
		c.notify = fn
	}
}

// WithUsageHook registers a callback receiving token usage per response.
func WithUsageHook(fn func(model string, usage UsageMetadata)) Option {
	return func(c *httpClient) {
		c.usage = fn
	}
}

// WithRateLimit paces outgoing attempts to rps requests per second.
// Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	notify  func(RetryNotice)
	usage   func(string, UsageMetadata)
}

// NewClient creates a Gemini API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.ExponentialWithJitter(MaxRetries, time.Second, time.Second),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the generateContent URL for model under baseURL.
func Endpoint(baseURL, model string) string {
	return baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
}

func (c *httpClient) GenerateContent(ctx context.Context, model string, req *Request) (*Response, error) {
	raw, err := c.Call(ctx, Endpoint(c.baseURL, model), req)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, eris.Wrap(err, "gemini: unmarshal response")
	}
	if c.usage != nil && resp.UsageMetadata != nil {
		c.usage(model, *resp.UsageMetadata)
	}
	return &resp, nil
}

func (c *httpClient) Call(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: marshal request")
	}

	cfg := c.retry
	cfg.ShouldRetry = isMarkedTransient
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		n := RetryNotice{Attempt: attempt, Delay: delay, Err: err}
		var te *resilience.TransientError
		if errors.As(err, &te) {
			n.Status = te.StatusCode
		}
		zap.L().Warn("gemini: retrying request",
			zap.Int("attempt", attempt),
			zap.Int("status", n.Status),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.notify != nil {
			c.notify(n)
		}
	}

	raw, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (json.RawMessage, error) {
		return c.attempt(ctx, endpoint, body)
	})
	if err == nil {
		return raw, nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return nil, reqErr
	}
	var te *resilience.TransientError
	if errors.As(err, &te) {
		return nil, te.Err
	}
	return nil, err
}

// attempt performs one POST. Retryable statuses and network faults come back
// as TransientError; other failures as RequestError.
func (c *httpClient) attempt(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "gemini: rate limit wait")
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "gemini: send request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "gemini: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "gemini: read response"), 0)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(respBody), nil
	}

	reqErr := &RequestError{Status: resp.StatusCode, Message: parseErrorMessage(respBody)}
	if RetryableStatuses.Contains(resp.StatusCode) {
		return nil, resilience.NewTransientError(reqErr, resp.StatusCode)
	}
	return nil, reqErr
}

func isMarkedTransient(err error) bool {
	var te *resilience.TransientError
	return errors.As(err, &te)
}

func parseErrorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error.Message == "" {
		return "Unknown error"
	}
	return eb.Error.Message
}

// Package httpclient provides the retrying HTTP client shared by the LLM
// and embedder providers.
package httpclient

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryStrategy selects how a failed attempt is retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota
	// BackoffRetry retries with full-jitter exponential backoff.
	BackoffRetry
	// RateLimitRetry honors server-provided reset hints before backing off.
	RateLimitRetry
)

// RateLimitInfo carries rate-limit hints parsed from response headers.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

// RateLimitHeaderParser extracts rate-limit hints from response headers.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

// RetryStrategyFunc maps an HTTP status code to a retry strategy.
type RetryStrategyFunc func(int) RetryStrategy

// Client wraps http.Client with bounded retries.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithMaxRetries sets the retry cap.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// WithHeaderParser sets the rate-limit header parser.
func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) { c.headerParser = parser }
}

// WithRetryStrategy overrides the status-code to strategy mapping.
func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) { c.strategyFunc = strategyFunc }
}

// New creates a Client. Defaults: 3 retries, 250ms base delay.
func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   3,
		baseDelay:    250 * time.Millisecond,
		strategyFunc: DefaultRetryStrategy,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// DefaultRetryStrategy retries 5xx and timeouts, honors rate-limit hints on
// 429/503, and never retries other 4xx responses.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return RateLimitRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return BackoffRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying per the configured strategy. Requests
// with a body must set req.GetBody so the body can be replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, strategy, retryInfo, err := c.attemptRequest(req)
		if err == nil {
			return resp, nil
		}
		lastResp, lastErr = resp, err

		if strategy == NoRetry || attempt >= c.maxRetries {
			break
		}

		delay := c.delayFor(strategy, attempt, retryInfo)
		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}

	if lastResp != nil {
		statusCode := lastResp.StatusCode
		return lastResp, &RetryableError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
			Err:        lastErr,
		}
	}
	return nil, lastErr
}

func (c *Client) attemptRequest(req *http.Request) (*http.Response, RetryStrategy, RateLimitInfo, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		// Network failures back off like 5xx; context errors are checked
		// by the caller between attempts.
		if req.Context().Err() != nil {
			return nil, NoRetry, RateLimitInfo{}, err
		}
		return nil, BackoffRetry, RateLimitInfo{}, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, NoRetry, RateLimitInfo{}, nil
	}

	var retryInfo RateLimitInfo
	if c.headerParser != nil {
		retryInfo = c.headerParser(resp.Header)
	}

	return resp, c.strategyFunc(resp.StatusCode), retryInfo, fmt.Errorf("HTTP %d", resp.StatusCode)
}

// delayFor computes the wait before the next attempt. Backoff uses full
// jitter: a uniform draw from [0, baseDelay * 2^attempt].
func (c *Client) delayFor(strategy RetryStrategy, attempt int, retryInfo RateLimitInfo) time.Duration {
	if strategy == RateLimitRetry {
		if retryInfo.RetryAfter > 0 {
			return retryInfo.RetryAfter
		}
		if retryInfo.ResetTime > 0 {
			if delay := time.Until(time.Unix(retryInfo.ResetTime, 0)); delay > 0 {
				return delay
			}
		}
	}

	ceiling := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

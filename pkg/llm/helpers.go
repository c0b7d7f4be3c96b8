package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/httpclient"
)

// newProviderHTTPClient builds the retrying transport for a provider. The
// outer http.Client timeout is left unset; the gateway owns the per-call
// deadline through the request context.
func newProviderHTTPClient(cfg config.LLMConfig, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond),
	}
	if parser != nil {
		opts = append(opts, httpclient.WithHeaderParser(parser))
	}
	return httpclient.New(opts...)
}

// classifyHTTPFailure maps a failed provider request onto a fault kind:
// context expiry is a timeout, 4xx (other than 408/429) is a bad request,
// everything else exhausted its retries against a struggling upstream.
func classifyHTTPFailure(op string, resp *http.Response, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindTimeout, component, op, "provider call exceeded deadline", err)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) && retryErr.StatusCode > 0 {
		status = retryErr.StatusCode
	}

	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return fault.Wrap(fault.KindRequest, component, op, "provider rejected request", err)
	}
	return fault.Wrap(fault.KindUpstream, component, op, "provider unavailable", err)
}

// drainBody reads and closes a response body, tolerating read failures.
func drainBody(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil
	}
	return body
}

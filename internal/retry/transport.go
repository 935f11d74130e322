// Package retry wraps outbound HTTP calls in a fixed-delay retry policy.
package retry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// AttemptHeader carries the zero-based attempt number on every submitted request
const AttemptHeader = "X-Retry-Attempt"

const (
	DefaultCount = 3
	DefaultDelay = time.Second
)

// Policy is the retry budget for a request
type Policy struct {
	Count int           // Retries after the first attempt
	Delay time.Duration // Fixed wait between attempts
}

type policyKey struct{}

// WithPolicy overrides the transport's policy for requests built with ctx
func WithPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// Attempt returns the attempt number recorded on req, 0 for the first submission
func Attempt(req *http.Request) int {
	n, err := strconv.Atoi(req.Header.Get(AttemptHeader))
	if err != nil {
		return 0
	}
	return n
}

// Transport resubmits failed requests. A failure is a transport error
// or a non-2xx status. Callers see only the final outcome.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil)
func NewTransport(base http.RoundTripper, p Policy, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Policy: p, Logger: logger}
}

func (t *Transport) policy(ctx context.Context) Policy {
	if p, ok := ctx.Value(policyKey{}).(Policy); ok {
		return p
	}
	return t.Policy
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	p := t.policy(ctx)
	if p.Count < 0 {
		p.Count = 0
	}

	for attempt := 0; ; attempt++ {
		try, err := prepare(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.Base.RoundTrip(try)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if attempt >= p.Count {
			return resp, err
		}

		t.Logger.Debug("retrying request",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"attempt", attempt+1,
			"status", statusOf(resp),
			"error", err)

		if resp != nil {
			// Drain so the connection can be reused
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// prepare clones req for the given attempt with a fresh body
func prepare(req *http.Request, attempt int) (*http.Request, error) {
	try := req.Clone(req.Context())
	try.Header.Set(AttemptHeader, strconv.Itoa(attempt))
	if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("retry: request body cannot be rewound")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("retry: rewind body: %w", err)
		}
		try.Body = body
	}
	return try, nil
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

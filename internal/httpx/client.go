package httpx

import (
	"net/http"
	"time"
)

const defaultUserAgent = "bera-mcp/1.0"

// Observer receives the outcome of every JSON-RPC HTTP round trip.
type Observer func(status string, elapsed time.Duration)

type transport struct {
	base      http.RoundTripper
	userAgent string
	observe   Observer
}

// New returns the HTTP client used underneath the JSON-RPC connection.
// Requests are never retried here: a resubmitted eth_sendRawTransaction must
// be an explicit caller decision.
func New(timeout time.Duration, observe Observer) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &transport{
			base:      http.DefaultTransport,
			userAgent: defaultUserAgent,
			observe:   observe,
		},
	}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", "application/json")
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(clone)
	if t.observe != nil {
		t.observe(statusLabel(resp, err), time.Since(start))
	}
	return resp, err
}

func statusLabel(resp *http.Response, err error) string {
	switch {
	case err != nil:
		return "error"
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case resp.StatusCode >= http.StatusInternalServerError:
		return "unavailable"
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "rejected"
	default:
		return "ok"
	}
}

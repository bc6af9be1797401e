// Package transport builds the outbound HTTP client shared by the driven adapters.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gregjones/httpcache"
)

// DefaultTimeout bounds a single outbound request, including retries after
// a rate-limit sleep.
const DefaultTimeout = 20 * time.Second

// NewClient creates an http.Client with the following transport stack:
//  1. logging (one debug line per round trip, never headers or bodies)
//  2. httpcache (honours Cache-Control/ETag on GETs such as the person lookup)
//  3. go-github-ratelimit (sleeps on 429/Retry-After instead of hammering the provider)
func NewClient(timeout time.Duration, logger *slog.Logger) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = &loggingTransport{next: http.DefaultTransport, logger: logger}

	client := github_ratelimit.NewClient(cacheTransport)
	client.Timeout = timeout
	return client
}

// loggingTransport logs method, host, path, status and duration of each
// round trip. Query strings are omitted since they carry document numbers.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	if err != nil {
		t.logger.Warn("outbound request failed",
			"method", req.Method,
			"host", req.URL.Host,
			"path", req.URL.Path,
			"duration", time.Since(start).Round(time.Millisecond),
			"error", err,
		)
		return nil, err
	}

	t.logger.Debug("outbound request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return resp, nil
}

package health

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultLivenessPath is the liveness endpoint path.
const DefaultLivenessPath = "/actuator/health/liveness"

// StatusError reports a non-2xx liveness response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("liveness %s returned HTTP %d", e.URL, e.Code)
}

// HTTPChecker probes a liveness endpoint with a GET request.
// Any 2xx answer is success; the body is ignored.
type HTTPChecker struct {
	url    string
	client *fasthttp.Client
}

// NewHTTPChecker creates a checker for baseURL joined with path.
func NewHTTPChecker(baseURL, path string) *HTTPChecker {
	if path == "" {
		path = DefaultLivenessPath
	}
	return &HTTPChecker{
		url: strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		client: &fasthttp.Client{
			Name:                     "tablefeed-health",
			NoDefaultUserAgentHeader: true,
			MaxIdleConnDuration:      time.Minute,
		},
	}
}

// URL returns the probed URL.
func (c *HTTPChecker) URL() string {
	return c.url
}

// Check issues a single GET bounded by the context deadline.
func (c *HTTPChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := DefaultProbeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("liveness probe %s: %w", c.url, err)
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return &StatusError{URL: c.url, Code: code}
	}
	return nil
}

// BaseURLFromFeed derives the HTTP base URL of the backend from its feed URL,
// mapping ws to http and wss to https and dropping the path.
func BaseURLFromFeed(feedURL string) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("cannot derive liveness URL from scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("feed URL %q has no host", feedURL)
	}

	return u.Scheme + "://" + u.Host, nil
}

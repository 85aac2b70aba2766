// Package fetch is the HTTP client for the vendor's internal JSON endpoints.
//
// The vendor has no public API: requests ride on a browser-style session
// (cookies, bespoke headers, sometimes a CSRF token scraped from the
// dashboard page). This package owns all of that plus bounded retries, so the
// rest of the pipeline only ever sees decoded JSON payloads or an error.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"portsignal/internal/metrics"
)

// Options configures a Client.
type Options struct {
	// BaseURL resolves relative endpoints. May be empty if every configured
	// endpoint is absolute.
	BaseURL string

	// Timeout applies per request attempt. Zero means 30s.
	Timeout time.Duration

	// MaxAttempts bounds attempts per request, including the first.
	// Zero or negative means 5.
	MaxAttempts int

	// Headers are attached to every request.
	Headers map[string]string

	// Cookies seed the client's cookie jar (session cookies exported from a
	// logged-in browser).
	Cookies map[string]string
}

// Client wraps a resty client configured for the vendor session.
type Client struct {
	rc      *resty.Client
	baseURL string
}

// New builds a Client with retry/backoff tuned for the vendor's habit of
// shedding load with 429s and the occasional 5xx.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}

	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		}).
		SetRetryAfter(retryAfterHeader)

	for k, v := range opts.Headers {
		rc.SetHeader(k, v)
	}
	for name, value := range opts.Cookies {
		rc.SetCookie(&http.Cookie{Name: name, Value: value})
	}

	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		metrics.RecordHTTP(resp.StatusCode(), nil, resp.Time(), resp.Size())
		return nil
	})
	rc.OnError(func(_ *resty.Request, err error) {
		metrics.RecordHTTP(0, err, 0, -1)
	})

	return &Client{rc: rc, baseURL: strings.TrimRight(opts.BaseURL, "/")}
}

// FetchJSON requests one endpoint and returns the decoded JSON payload.
// A nil request payload means GET; otherwise the payload is POSTed as JSON,
// matching how the vendor's dashboard calls these endpoints.
//
// Errors:
//   - unresolvable endpoint (relative with no base URL)
//   - transport failure or non-2xx status after retries are exhausted
//   - a 2xx body that is not valid JSON
func (c *Client) FetchJSON(ctx context.Context, endpoint string, payload map[string]any) (any, error) {
	u, err := c.resolveURL(endpoint)
	if err != nil {
		return nil, err
	}

	req := c.rc.R().SetContext(ctx)

	var resp *resty.Response
	if payload == nil {
		resp, err = req.Get(u)
	} else {
		resp, err = req.SetHeader("Content-Type", "application/json").SetBody(payload).Post(u)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d: %s", u, resp.StatusCode(), truncate(resp.String(), 256))
	}

	var decoded any
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("fetch %s: response is not valid JSON: %w", u, err)
	}
	return decoded, nil
}

func (c *Client) resolveURL(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("relative endpoint %q requires a base URL", endpoint)
	}
	joined, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint %q: %w", endpoint, err)
	}
	return joined, nil
}

// retryAfterHeader honors the vendor's Retry-After on 429s (both
// delta-seconds and HTTP-date forms); returning 0 falls back to resty's
// exponential backoff.
func retryAfterHeader(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	ra := strings.TrimSpace(resp.Header().Get("Retry-After"))
	if ra == "" {
		return 0, nil
	}

	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0, nil
		}
		return time.Duration(secs) * time.Second, nil
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d, nil
		}
	}
	return 0, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

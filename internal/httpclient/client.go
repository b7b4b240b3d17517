// Package httpclient provides the two small fetcher driver types the
// engine uses: a resty-backed synchronous client for playlist/key/cover
// GETs (benefits from resty's retry conditions and request/response
// logging), and a plain net/http client tuned for many concurrent segment
// GETs where per-call overhead matters more than convenience.
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
	Origin       string
	Referer      string
	ProxyURL     string
	Debug        bool
}

// DefaultOptions returns sensible defaults for control-plane requests
// (playlist, key, cover).
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		RetryCount:   3,
		RetryWait:    1 * time.Second,
		RetryMaxWait: 10 * time.Second,
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	}
}

// Client wraps a resty.Client with the retry conditions and header
// defaults the Playlist Fetcher needs.
type Client struct {
	rc     *resty.Client
	logger *slog.Logger
}

// NewClient builds a Client from opts. logger may be nil (a discard
// logger is used then).
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait)

	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Origin != "" {
		rc.SetHeader("Origin", opts.Origin)
	}
	if opts.Referer != "" {
		rc.SetHeader("Referer", opts.Referer)
	}
	if opts.ProxyURL != "" {
		rc.SetProxy(opts.ProxyURL)
	}

	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() >= 500 || r.StatusCode() == 429
	})

	c := &Client{rc: rc, logger: logger}
	if opts.Debug {
		rc.OnBeforeRequest(c.logRequest)
		rc.OnAfterResponse(c.logResponse)
	}
	return c
}

// SetCookies applies a cookie map to every subsequent request. This is the
// single setter an external captcha/cookie-refresh collaborator calls to
// hand freshly solved cookies back into the client, per the engine's
// explicit-configuration design.
func (c *Client) SetCookies(cookies map[string]string) {
	for name, value := range cookies {
		c.rc.SetCookie(&http.Cookie{Name: name, Value: value})
	}
}

// Get issues a GET to url with the given extra headers (merged over the
// client defaults) and returns the status code and body.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	req := c.rc.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: get %s: %w", url, err)
	}
	return resp.StatusCode(), resp.Body(), nil
}

func (c *Client) logRequest(_ *resty.Client, r *resty.Request) error {
	c.logger.Debug("http request", "method", r.Method, "url", r.URL)
	return nil
}

func (c *Client) logResponse(_ *resty.Client, r *resty.Response) error {
	c.logger.Debug("http response", "url", r.Request.URL, "status", r.StatusCode(), "duration", r.Time())
	return nil
}

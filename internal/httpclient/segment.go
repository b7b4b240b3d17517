package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SegmentClient is the plain net/http fetcher used by the Segment Fetcher.
// Unlike Client it carries no resty convenience layer: a job can issue
// hundreds of segment GETs (several at a time, up to the wave's width),
// and the per-call overhead of a heavier client adds up at that volume.
type SegmentClient struct {
	hc        *http.Client
	userAgent string
	referer   string
}

// NewSegmentClient builds a SegmentClient with the given per-request
// timeout and header defaults.
func NewSegmentClient(timeout time.Duration, userAgent, referer string) *SegmentClient {
	return &SegmentClient{
		hc:        &http.Client{Timeout: timeout},
		userAgent: userAgent,
		referer:   referer,
	}
}

// Get issues a GET to url with extra headers merged over the client's
// defaults, returning the status code and full body.
func (c *SegmentClient) Get(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: build request for %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("httpclient: read body for %s: %w", url, err)
	}
	return resp.StatusCode, body, nil
}

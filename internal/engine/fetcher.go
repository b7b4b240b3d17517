package engine

import (
	"context"
	"fmt"
	"time"
)

// Fetcher is the common capability both HTTP driver types implement:
// a single GET returning a status code and body. The Playlist Fetcher
// uses a synchronous resty-backed driver; the Segment Fetcher uses a
// plain net/http driver sized for high concurrency. See
// internal/httpclient for both implementations.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (status int, body []byte, err error)
}

// RetryPolicy is the backoff schedule shared by the Playlist Fetcher and
// Segment Fetcher: base*2^k integer seconds for attempt k = 0..count-1,
// with no post-wait after the final attempt.
type RetryPolicy struct {
	Count int
	Base  time.Duration
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// getWithRetry issues GET requests against url until it succeeds (2xx),
// is classified as a terminal Forbidden/NotFound, or the retry policy is
// exhausted. notFoundThreshold is the number of 404 responses within one
// call (not necessarily consecutive) that escalate to a terminal NotFound
// error.
func getWithRetry(ctx context.Context, f Fetcher, url string, headers map[string]string, policy RetryPolicy, notFoundThreshold int) ([]byte, error) {
	notFoundCount := 0
	var lastErr error

	for attempt := 0; attempt < policy.Count; attempt++ {
		status, body, err := f.Get(ctx, url, headers)
		if err != nil {
			lastErr = err
		} else {
			switch {
			case status >= 200 && status < 300:
				return body, nil
			case status == 403:
				return nil, newErr(KindForbidden, "getWithRetry", url, fmt.Errorf("forbidden (403)"))
			case status == 404:
				notFoundCount++
				if Is404Threshold(notFoundCount, notFoundThreshold) {
					return nil, newErr(KindNotFound, "getWithRetry", url, fmt.Errorf("not found (404)"))
				}
				lastErr = fmt.Errorf("not found (404)")
			default:
				lastErr = fmt.Errorf("unexpected status %d", status)
			}
		}

		if attempt < policy.Count-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.wait(attempt)):
			}
		}
	}
	return nil, newErr(KindTransport, "getWithRetry", url, lastErr)
}

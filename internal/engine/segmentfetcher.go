package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashbyte/hlsvault/internal/engine/hls"
)

// SegmentFetcher is the bounded-parallel downloader of one wave of
// segments: fetch -> write -> decrypt-in-place, with per-segment
// retry/backoff. It surfaces two distinguished terminal conditions,
// Forbidden and Expired, either of which cancels the rest of the wave.
type SegmentFetcher struct {
	client     Fetcher
	temp       *TempStore
	decryptor  *Decryptor
	policy     RetryPolicy
	concurrency int
	logger     *slog.Logger
}

// NewSegmentFetcher builds a SegmentFetcher. client is the concurrent
// driver used for segment GETs (see internal/httpclient.SegmentClient).
// concurrency is the wave's semaphore width, C_ts.
func NewSegmentFetcher(client Fetcher, temp *TempStore, policy RetryPolicy, concurrency int, logger *slog.Logger) *SegmentFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &SegmentFetcher{
		client:      client,
		temp:        temp,
		decryptor:   NewDecryptor(),
		policy:      policy,
		concurrency: concurrency,
		logger:      logger,
	}
}

// WaveResult is the outcome of one wave.
type WaveResult struct {
	// Expired is set when any segment returned 410: the Job Driver should
	// refresh the playlist and run a new wave over the recomputed
	// inventory.
	Expired bool
	// Failed lists segments that did not complete and did not themselves
	// hit Forbidden or Expired: those that exhausted their retries, failed
	// to write or decrypt, or were cancelled when the wave was cut short.
	// They remain absent (or corrupt-by-length) on disk and will reappear
	// in the next inventory computation.
	Failed []hls.Segment
}

type segmentOutcome struct {
	segment hls.Segment
	state   segmentState
}

type segmentState int

const (
	stateDone segmentState = iota
	stateFailed
	stateForbidden
	stateExpired
)

// RunWave fetches every segment in pending, writing decrypted files into
// the job's segment directory. baseURL resolves relative segment URIs;
// key and iv decrypt each segment's ciphertext.
//
// A Forbidden result on any one segment aborts the wave immediately
// (ctx is cancelled, err is a KindForbidden *Error) and surfaces as a
// terminal job error. An Expired result cancels the remaining in-flight
// work and is reported via WaveResult.Expired so the Job Driver can
// refresh the playlist and retry, without being treated as a hard error.
func (sf *SegmentFetcher) RunWave(ctx context.Context, id, baseURL string, key []byte, iv string, pending []hls.Segment) (WaveResult, error) {
	waveCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sem := make(chan struct{}, sf.concurrency)
	outcomes := make(chan segmentOutcome, len(pending))
	var wg sync.WaitGroup

	var forbiddenErr error
	var mu sync.Mutex

	for _, seg := range pending {
		wg.Add(1)
		go func(seg hls.Segment) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-waveCtx.Done():
				outcomes <- segmentOutcome{segment: seg, state: stateFailed}
				return
			}
			defer func() { <-sem }()

			state, err := sf.fetchOne(waveCtx, id, baseURL, key, iv, seg)
			if state == stateForbidden {
				mu.Lock()
				if forbiddenErr == nil {
					forbiddenErr = err
				}
				mu.Unlock()
				cancel(err)
			} else if state == stateExpired {
				cancel(errWaveExpired)
			}
			outcomes <- segmentOutcome{segment: seg, state: state}
		}(seg)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var result WaveResult
	for oc := range outcomes {
		switch oc.state {
		case stateExpired:
			result.Expired = true
		case stateFailed:
			result.Failed = append(result.Failed, oc.segment)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if forbiddenErr != nil {
		return result, forbiddenErr
	}
	return result, nil
}

var errWaveExpired = errors.New("segment fetcher: playlist expired mid-wave")

// fetchOne runs the per-segment state machine: Fetching -> Writing ->
// Decrypting -> Done, with RetryWait/backoff on transport errors and
// immediate termination on Forbidden/Expired.
func (sf *SegmentFetcher) fetchOne(ctx context.Context, id, baseURL string, key []byte, iv string, seg hls.Segment) (segmentState, error) {
	url := resolveURL(baseURL, seg.URI)
	leaf := filepath.Base(seg.URI)

	var lastErr error
	for attempt := 0; attempt < sf.policy.Count; attempt++ {
		if ctx.Err() != nil {
			return stateFailed, ctx.Err()
		}

		status, body, err := sf.client.Get(ctx, url, nil)
		switch {
		case err == nil && status >= 200 && status < 300:
			if writeErr := sf.temp.WriteSegment(id, leaf, body); writeErr != nil {
				return stateFailed, writeErr
			}
			plain, decErr := sf.decryptor.Decrypt(body, key, iv)
			if decErr != nil {
				os.Remove(sf.temp.SegmentPath(id, leaf))
				return stateFailed, decErr
			}
			if writeErr := sf.temp.WriteSegment(id, leaf, plain); writeErr != nil {
				return stateFailed, writeErr
			}
			return stateDone, nil

		case err == nil && status == 403:
			return stateForbidden, newErr(KindForbidden, "SegmentFetcher.fetchOne", url, errors.New("forbidden (403)"))

		case err == nil && status == 410:
			return stateExpired, newErr(KindPlaylistExpired, "SegmentFetcher.fetchOne", url, errors.New("expired (410)"))

		default:
			if err != nil {
				lastErr = err
			} else {
				lastErr = errors.New("unexpected segment status")
			}
		}

		if attempt < sf.policy.Count-1 {
			select {
			case <-ctx.Done():
				return stateFailed, ctx.Err()
			case <-time.After(sf.policy.wait(attempt)):
			}
		}
	}

	sf.logger.Warn("segment failed after retries", "job", id, "uri", seg.URI, "err", lastErr)
	return stateFailed, newErr(KindTransport, "SegmentFetcher.fetchOne", url, lastErr)
}

package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashbyte/hlsvault/internal/engine/hls"
)

// PlaylistFetcher downloads the playlist, compares it against the cached
// copy, (re)downloads the key on change, and writes all three temp
// artifacts atomically.
type PlaylistFetcher struct {
	client  Fetcher
	temp    *TempStore
	store   *DownloadInfoStore
	policy  RetryPolicy
	notFoundThreshold int
	logger  *slog.Logger
}

// NewPlaylistFetcher builds a PlaylistFetcher. client is the synchronous
// driver used for playlist/key GETs (see internal/httpclient.Client).
func NewPlaylistFetcher(client Fetcher, temp *TempStore, store *DownloadInfoStore, policy RetryPolicy, logger *slog.Logger) *PlaylistFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PlaylistFetcher{client: client, temp: temp, store: store, policy: policy, notFoundThreshold: 3, logger: logger}
}

// Result is the outcome of a Fetch call.
type Result struct {
	Playlist  *hls.Playlist
	Key       []byte
	IV        string
	Unchanged bool
}

// Fetch runs the Playlist Fetcher's steps for job, returning the parsed
// playlist and decryption material.
func (pf *PlaylistFetcher) Fetch(ctx context.Context, job *Job) (*Result, error) {
	id := job.LowerID()
	if err := pf.temp.InitDirs(id); err != nil {
		return nil, err
	}

	lastURL, err := pf.store.LatestPlaylistURL(id)
	if err != nil {
		return nil, err
	}
	currentURL := job.HLSURL
	if lastURL == "" {
		lastURL = currentURL
	}

	raw, err := getWithRetry(ctx, pf.client, currentURL, nil, pf.policy, pf.notFoundThreshold)
	if err != nil {
		return nil, newErr(KindOf(err), "PlaylistFetcher.Fetch", currentURL, err)
	}

	pl, err := hls.Parse(string(raw))
	if err != nil {
		return nil, newErr(KindInvalidInput, "PlaylistFetcher.Fetch", currentURL, err)
	}

	artifacts := pf.temp.ReadAll(id)
	freshHash := hashText(string(raw))
	cachedHash := hashText(artifacts.Playlist)
	unchanged := artifacts.PlaylistExists &&
		freshHash == cachedHash &&
		lastURL == currentURL &&
		artifacts.KeyExists &&
		artifacts.IVExists

	if unchanged {
		pf.logger.Debug("playlist unchanged", "job", id, "url", currentURL)
		return &Result{Playlist: pl, Key: artifacts.Key, IV: artifacts.IV, Unchanged: true}, nil
	}

	if pl.Key == nil {
		return nil, newErr(KindInvalidInput, "PlaylistFetcher.Fetch", currentURL, fmt.Errorf("playlist has no #EXT-X-KEY record"))
	}

	keyURL := resolveURL(job.BaseURL, pl.Key.URI)
	keyBytes, err := getWithRetry(ctx, pf.client, keyURL, nil, pf.policy, pf.notFoundThreshold)
	if err != nil {
		return nil, newErr(KindOf(err), "PlaylistFetcher.Fetch", keyURL, err)
	}

	if err := pf.temp.WritePlaylist(id, string(raw)); err != nil {
		return nil, err
	}
	if err := pf.temp.WriteKey(id, keyBytes); err != nil {
		return nil, err
	}
	if err := pf.temp.WriteIV(id, pl.Key.IV); err != nil {
		return nil, err
	}

	if err := pf.store.Append(id, AttemptRecord{
		PlaylistURL: currentURL,
		Name:        job.Name,
		Actress:     job.Actress,
		HashTag:     job.HashTag,
		CoverURL:    job.CoverURL,
		Src:         job.Src,
		Status:      string(StatusDownloading),
		HasChinese:  job.HasChinese,
		ReleaseDate: job.ReleaseDate,
		TimeLength:  job.TimeLength,
	}); err != nil {
		return nil, err
	}

	pf.logger.Info("playlist fetched", "job", id, "url", currentURL, "segments", len(pl.Segments))
	return &Result{Playlist: pl, Key: keyBytes, IV: pl.Key.IV}, nil
}

// DownloadCover best-effort fetches job's cover image and writes it to
// coverDir/<id>.jpg. A failure is logged and never fails the job.
func (pf *PlaylistFetcher) DownloadCover(ctx context.Context, job *Job, coverDir string) {
	if job.CoverURL == "" {
		return
	}
	body, err := getWithRetry(ctx, pf.client, job.CoverURL, nil, pf.policy, pf.notFoundThreshold)
	if err != nil {
		pf.logger.Warn("cover download failed", "job", job.LowerID(), "url", job.CoverURL, "err", err)
		return
	}
	path := coverDir + "/" + job.LowerID() + ".jpg"
	if err := writeFileAtomic(path, body); err != nil {
		pf.logger.Warn("cover write failed", "job", job.LowerID(), "path", path, "err", err)
	}
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// resolveURL resolves a possibly-relative uri against base, per the job's
// base-URL invariant: every relative segment/key URI resolves against it.
func resolveURL(base, uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	return base + strings.TrimPrefix(uri, "/")
}


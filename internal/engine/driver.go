package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashbyte/hlsvault/internal/engine/hls"
)

// Driver orchestrates a single job end to end: playlist fetch, repeated
// inventory/wave cycles, merge, and temp cleanup. On any unrecovered
// error the job transitions to Failed and its temp subtree is left
// intact so a later run can resume.
type Driver struct {
	temp            *TempStore
	store           *DownloadInfoStore
	inventory       *Inventory
	playlistFetcher *PlaylistFetcher
	segmentFetcher  *SegmentFetcher
	merger          *Merger

	videoDir string
	coverDir string

	// maxWaveRefreshes bounds how many inventory/wave cycles one job may
	// run before the driver gives up and fails it. Without this cap a
	// segment that keeps exhausting its per-wave retries (but is never
	// Forbidden or Expired) would recompute to the same non-empty
	// inventory forever.
	maxWaveRefreshes int

	// progressHook, when set, is called after every inventory pass with
	// the segment-level progress for id, so a caller (the CLI, via the
	// Job Ledger) can persist it without the Driver knowing the ledger
	// exists.
	progressHook func(id string, done, total int, bytesDone int64)

	logger *slog.Logger
}

// SetProgressHook installs fn to be called after each inventory pass
// with the job's segment progress and on-disk bytes downloaded so far.
func (d *Driver) SetProgressHook(fn func(id string, done, total int, bytesDone int64)) {
	d.progressHook = fn
}

func (d *Driver) reportProgress(id string, done, total int) {
	if d.progressHook == nil {
		return
	}
	d.progressHook(id, done, total, d.segmentBytes(id))
}

// segmentBytes sums the size of every file already written to the job's
// segment directory, corrupt or not, as a coarse "bytes downloaded" figure.
func (d *Driver) segmentBytes(id string) int64 {
	entries, err := os.ReadDir(d.temp.SegmentDir(id))
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total
}

// NewDriver builds a Driver for one job run. videoDir/coverDir are the
// final output directories (not the temp directories TempStore owns).
func NewDriver(
	temp *TempStore,
	store *DownloadInfoStore,
	inventory *Inventory,
	playlistFetcher *PlaylistFetcher,
	segmentFetcher *SegmentFetcher,
	merger *Merger,
	videoDir, coverDir string,
	logger *slog.Logger,
) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		temp:             temp,
		store:            store,
		inventory:        inventory,
		playlistFetcher:  playlistFetcher,
		segmentFetcher:   segmentFetcher,
		merger:           merger,
		videoDir:         videoDir,
		coverDir:         coverDir,
		maxWaveRefreshes: 20,
		logger:           logger,
	}
}

// Run drives job through Pending -> Downloading -> Merging -> Finished,
// or Failed on any unrecovered error.
func (d *Driver) Run(ctx context.Context, job *Job) error {
	id := job.LowerID()
	d.logger.Info("job starting", "job", id)

	if err := d.temp.InitDirs(id); err != nil {
		job.Status = StatusFailed
		return err
	}

	res, err := d.playlistFetcher.Fetch(ctx, job)
	if err != nil {
		job.Status = StatusFailed
		d.logger.Error("playlist fetch failed", "job", id, "err", err)
		return err
	}
	d.playlistFetcher.DownloadCover(ctx, job, d.coverDir)

	job.Status = StatusDownloading
	pl, key, iv := res.Playlist, res.Key, res.IV

	for wave := 0; ; wave++ {
		pending, err := d.inventory.Compute(id, pl)
		if err != nil {
			job.Status = StatusFailed
			return err
		}
		d.reportProgress(id, len(pl.Segments)-len(pending), len(pl.Segments))
		if len(pending) == 0 {
			break
		}
		if wave >= d.maxWaveRefreshes {
			job.Status = StatusFailed
			return newErr(KindTransport, "Driver.Run", job.HLSURL, fmt.Errorf("exceeded %d wave attempts with %d segments still pending", d.maxWaveRefreshes, len(pending)))
		}

		result, err := d.segmentFetcher.RunWave(ctx, id, job.BaseURL, key, iv, pending)
		if err != nil {
			job.Status = StatusFailed
			d.logger.Error("segment wave aborted", "job", id, "err", err)
			return err
		}

		if result.Expired {
			d.logger.Info("playlist expired mid-wave, refreshing", "job", id)
			res, err = d.playlistFetcher.Fetch(ctx, job)
			if err != nil {
				job.Status = StatusFailed
				return err
			}
			pl, key, iv = res.Playlist, res.Key, res.IV
		}
	}

	job.Status = StatusMerging
	if err := d.mergeAndRename(id, job, pl); err != nil {
		job.Status = StatusFailed
		return err
	}

	job.Status = StatusFinished
	if err := d.temp.Clean(id); err != nil {
		d.logger.Warn("temp cleanup failed", "job", id, "err", err)
	}
	d.logger.Info("job finished", "job", id)
	return nil
}

func (d *Driver) mergeAndRename(id string, job *Job, pl *hls.Playlist) error {
	if err := os.MkdirAll(d.videoDir, 0o755); err != nil {
		return err
	}
	order := make([]string, len(pl.Segments))
	for i, seg := range pl.Segments {
		order[i] = filepath.Base(seg.URI)
	}
	provisional := filepath.Join(d.videoDir, id+".mp4")
	if err := d.merger.Merge(id, provisional, order); err != nil {
		return err
	}
	final := filepath.Join(d.videoDir, fmt.Sprintf("%s %s %s.mp4", job.UpperID(), job.Name, job.Actress))
	return os.Rename(provisional, final)
}

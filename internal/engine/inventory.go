package engine

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ashbyte/hlsvault/internal/engine/hls"
)

// Inventory computes, given a job's parsed playlist and its on-disk
// segment directory, the ordered sub-list of segments that still need to
// be fetched: those whose decrypted file is absent or corrupt.
//
// Because the origin occasionally rotates the playlist URL mid-download,
// segment filenames already on disk may have been written under an older
// URL's naming scheme. Historical attempt records let the algorithm
// recognize those files under their old prefix instead of re-downloading
// them.
type Inventory struct {
	store *DownloadInfoStore
	temp  *TempStore
}

// NewInventory returns an Inventory backed by store (for historical
// prefixes) and temp (for the segment directory).
func NewInventory(store *DownloadInfoStore, temp *TempStore) *Inventory {
	return &Inventory{store: store, temp: temp}
}

// ErrMissingSegmentDir is returned by Compute when the job's segment
// directory does not exist on disk.
var ErrMissingSegmentDir = errString("inventory: segment directory missing")

// Compute returns the sub-list of pl.Segments not yet present as a valid
// decrypted file, preserving playlist order.
func (inv *Inventory) Compute(id string, pl *hls.Playlist) ([]hls.Segment, error) {
	dir := inv.temp.SegmentDir(id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, newErr(KindInvalidInput, "Inventory.Compute", dir, ErrMissingSegmentDir)
	}

	prefixes, err := inv.prefixes(id, pl)
	if err != nil {
		return nil, err
	}

	credited, err := scanCredited(dir, prefixes)
	if err != nil {
		return nil, err
	}

	pending := make([]hls.Segment, 0, len(pl.Segments))
	for i, seg := range pl.Segments {
		if _, ok := credited[i]; !ok {
			pending = append(pending, seg)
		}
	}
	return pending, nil
}

// prefixes returns the candidate filename prefixes, oldest first, used to
// recognize segment files written under a previous playlist URL. Every
// recorded attempt contributes its playlist URL's last component (without
// ".m3u8") and next-to-last component. A prefix derived by stripping the
// trailing "0.ts" from the current playlist's first segment URI is always
// included, last; with no history it is the only prefix.
func (inv *Inventory) prefixes(id string, pl *hls.Playlist) ([]string, error) {
	history, err := inv.store.History(id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		if len(pl.Segments) == 0 {
			return nil, nil
		}
		first := pl.Segments[0].URI
		leaf := filepath.Base(first)
		prefix := strings.TrimSuffix(leaf, "0.ts")
		return []string{prefix}, nil
	}

	var prefixes []string
	for _, rec := range history {
		last, secondLast := pathComponents(rec.PlaylistURL)
		prefixes = append(prefixes, strings.TrimSuffix(last, ".m3u8"))
		if secondLast != "" {
			prefixes = append(prefixes, secondLast)
		}
	}
	if len(pl.Segments) > 0 {
		prefixes = append(prefixes, strings.TrimSuffix(filepath.Base(pl.Segments[0].URI), "0.ts"))
	}
	return prefixes, nil
}

// pathComponents returns the last and next-to-last path components of a
// URL, in that order. secondLast is "" if the URL has fewer than two
// path components.
func pathComponents(url string) (last, secondLast string) {
	trimmed := strings.TrimRight(url, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "", ""
	}
	last = parts[len(parts)-1]
	if len(parts) >= 2 {
		secondLast = parts[len(parts)-2]
	}
	return last, secondLast
}

// scanCredited scans every .ts file in dir, rejects corrupt ones (size
// not a positive multiple of 16), matches the rest against prefixes
// (first matching prefix wins, checked oldest-first), and returns the set
// of playlist indices those files credit. An index matched by two
// different files is left out of the set entirely: an explicit,
// unresolved gap rather than a guess.
func scanCredited(dir string, prefixes []string) (map[int]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newErr(KindInvalidInput, "scanCredited", dir, err)
	}

	matchedBy := map[int]string{} // index -> filename that first claimed it
	collided := map[int]bool{}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ts") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.Size() <= 0 || fi.Size()%16 != 0 {
			continue // corrupt or empty: not credited, will be re-fetched
		}

		idx, ok := matchIndex(e.Name(), prefixes)
		if !ok {
			continue
		}
		if existing, seen := matchedBy[idx]; seen {
			if existing != e.Name() {
				collided[idx] = true
			}
			continue
		}
		matchedBy[idx] = e.Name()
	}

	credited := make(map[int]struct{}, len(matchedBy))
	for idx := range matchedBy {
		if collided[idx] {
			continue
		}
		credited[idx] = struct{}{}
	}
	return credited, nil
}

// matchIndex tries each prefix in order and returns the trailing decimal
// index of the first one that matches name (without its .ts extension).
func matchIndex(name string, prefixes []string) (int, bool) {
	base := strings.TrimSuffix(name, ".ts")
	for _, prefix := range prefixes {
		if prefix == "" {
			if idx, err := strconv.Atoi(base); err == nil {
				return idx, true
			}
			continue
		}
		if strings.HasPrefix(base, prefix) {
			rest := strings.TrimPrefix(base, prefix)
			if idx, err := strconv.Atoi(rest); err == nil {
				return idx, true
			}
		}
	}
	return 0, false
}

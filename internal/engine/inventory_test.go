package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ashbyte/hlsvault/internal/engine/hls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlaylist(t *testing.T, n int) *hls.Playlist {
	t.Helper()
	pl := &hls.Playlist{}
	for i := 0; i < n; i++ {
		pl.Segments = append(pl.Segments, hls.Segment{URI: itoaTS(i)})
	}
	return pl
}

func itoaTS(i int) string {
	digits := []byte{}
	if i == 0 {
		digits = []byte{'0'}
	} else {
		for i > 0 {
			digits = append([]byte{byte('0' + i%10)}, digits...)
			i /= 10
		}
	}
	return string(digits) + ".ts"
}

func writeSegFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644))
}

func TestInventory_ColdStartAllMissing(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	store := NewDownloadInfoStore(filepath.Join(tmp, "download_info.json"))
	require.NoError(t, temp.InitDirs("abp-933"))

	inv := NewInventory(store, temp)
	pl := newTestPlaylist(t, 5)

	pending, err := inv.Compute("abp-933", pl)
	require.NoError(t, err)
	assert.Len(t, pending, 5)
}

func TestInventory_ResumePartiallyDownloaded(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	store := NewDownloadInfoStore(filepath.Join(tmp, "download_info.json"))
	require.NoError(t, temp.InitDirs("abp-933"))

	dir := temp.SegmentDir("abp-933")
	writeSegFile(t, dir, "0.ts", 32)
	writeSegFile(t, dir, "1.ts", 48)
	writeSegFile(t, dir, "2.ts", 15) // corrupt: not a multiple of 16

	inv := NewInventory(store, temp)
	pl := newTestPlaylist(t, 5)

	pending, err := inv.Compute("abp-933", pl)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "2.ts", pending[0].URI)
	assert.Equal(t, "3.ts", pending[1].URI)
	assert.Equal(t, "4.ts", pending[2].URI)
}

func TestInventory_MissingSegmentDirFails(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	store := NewDownloadInfoStore(filepath.Join(tmp, "download_info.json"))

	inv := NewInventory(store, temp)
	pl := newTestPlaylist(t, 1)

	_, err := inv.Compute("abp-933", pl)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSegmentDir)
}

func TestInventory_RotationUsesHistoricalPrefixes(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	store := NewDownloadInfoStore(filepath.Join(tmp, "download_info.json"))
	require.NoError(t, temp.InitDirs("abp-933"))

	require.NoError(t, store.Append("abp-933", AttemptRecord{PlaylistURL: "https://host-a/segA/playlist.m3u8"}))

	dir := temp.SegmentDir("abp-933")
	writeSegFile(t, dir, "playlist0.ts", 32)
	writeSegFile(t, dir, "playlist1.ts", 32)

	inv := NewInventory(store, temp)
	pl := newTestPlaylist(t, 3)

	pending, err := inv.Compute("abp-933", pl)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2.ts", pending[0].URI)
}

func TestInventory_IndexCollisionLeavesExplicitGap(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	store := NewDownloadInfoStore(filepath.Join(tmp, "download_info.json"))
	require.NoError(t, temp.InitDirs("abp-933"))

	require.NoError(t, store.Append("abp-933", AttemptRecord{PlaylistURL: "https://host-a/segA/playlist.m3u8"}))
	require.NoError(t, store.Append("abp-933", AttemptRecord{PlaylistURL: "https://host-b/segB/clip.m3u8"}))

	dir := temp.SegmentDir("abp-933")
	// Both prefixes derive index 0 from two DIFFERENT files: ambiguous.
	writeSegFile(t, dir, "playlist0.ts", 32)
	writeSegFile(t, dir, "clip0.ts", 32)
	writeSegFile(t, dir, "playlist1.ts", 32)

	inv := NewInventory(store, temp)
	pl := newTestPlaylist(t, 3)

	pending, err := inv.Compute("abp-933", pl)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "0.ts", pending[0].URI) // collided index 0 is an explicit gap
	assert.Equal(t, "2.ts", pending[1].URI)
}

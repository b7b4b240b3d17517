package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerger_InProcessSortsAndSkipsCorrupt(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	dir := temp.SegmentDir("abp-933")
	writeSegFile(t, dir, "0.ts", 16)
	writeSegFile(t, dir, "10.ts", 16)
	writeSegFile(t, dir, "2.ts", 16)
	writeSegFile(t, dir, "1.ts", 15) // corrupt: excluded

	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.ts"), []byte("AAAAAAAAAAAAAAAA"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.ts"), []byte("CCCCCCCCCCCCCCCC"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10.ts"), []byte("KKKKKKKKKKKKKKKK"), 0o644))

	out := filepath.Join(tmp, "out.mp4")
	m := NewMerger(temp, BackendInProcess, nil)
	require.NoError(t, m.Merge("abp-933", out, nil))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAAAAAACCCCCCCCCCCCCCCCKKKKKKKKKKKKKKKK", string(data))
}

func TestMerger_NoSegmentsFails(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	out := filepath.Join(tmp, "out.mp4")
	m := NewMerger(temp, BackendInProcess, nil)
	err := m.Merge("abp-933", out, nil)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestMerger_PlaylistOrderOverridesNumericSort(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	dir := temp.SegmentDir("abp-933")
	writeSegFile(t, dir, "0.ts", 16)
	writeSegFile(t, dir, "1.ts", 16)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.ts"), []byte("AAAAAAAAAAAAAAAA"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.ts"), []byte("BBBBBBBBBBBBBBBB"), 0o644))

	out := filepath.Join(tmp, "out.mp4")
	m := NewMerger(temp, BackendInProcess, nil)
	// A playlist that lists segment 1 before segment 0 (e.g. after a
	// rotation) must be honored over plain numeric order.
	require.NoError(t, m.Merge("abp-933", out, []string{"1.ts", "0.ts"}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBBBBBBBBBBAAAAAAAAAAAAAAAA", string(data))
}

func TestEscapeConcatPath(t *testing.T) {
	assert.Equal(t, `/a/b'\''c`, escapeConcatPath(`/a/b'c`))
}

package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBatchFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.yaml")
	require.NoError(t, writeFileAtomic(path, []byte(contents)))
	return path
}

func TestLoadBatch_HappyPath(t *testing.T) {
	path := writeBatchFile(t, `
jobs:
  - id: ABP-933
    name: Some Title
    actress: Some Actress
    hls_url: https://host/a/playlist.m3u8
    cover_url: https://host/a/cover.jpg
    src: site-a
  - id: SSIS-001
    name: Other Title
    actress: Other Actress
    hls_url: https://host/b/playlist.m3u8
    src: site-b
`)

	jobs, err := LoadBatch(path)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "ABP-933", jobs[0].ID)
	assert.Equal(t, "https://host/a/", jobs[0].BaseURL)
	assert.Equal(t, StatusPending, jobs[1].Status)
}

func TestLoadBatch_CarriesMetadataFields(t *testing.T) {
	path := writeBatchFile(t, `
jobs:
  - id: ABP-933
    name: Some Title
    actress: Some Actress
    hls_url: https://host/a/playlist.m3u8
    has_chinese: true
    release_date: "2024-01-02"
    time_length: "02:15:00"
`)

	jobs, err := LoadBatch(path)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].HasChinese)
	assert.Equal(t, "2024-01-02", jobs[0].ReleaseDate)
	assert.Equal(t, "02:15:00", jobs[0].TimeLength)
}

func TestLoadBatch_RejectsMissingFields(t *testing.T) {
	path := writeBatchFile(t, `
jobs:
  - name: No ID Here
    hls_url: https://host/a/playlist.m3u8
`)
	_, err := LoadBatch(path)
	require.Error(t, err)
}

func TestLoadBatch_RejectsDuplicateIDs(t *testing.T) {
	path := writeBatchFile(t, `
jobs:
  - id: ABP-933
    hls_url: https://host/a/playlist.m3u8
  - id: abp-933
    hls_url: https://host/b/playlist.m3u8
`)
	_, err := LoadBatch(path)
	require.Error(t, err)
}

package engine

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashbyte/hlsvault/internal/engine/hls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned responses keyed by URL, and counts concurrent
// in-flight calls so tests can assert the semaphore width is respected.
type fakeFetcher struct {
	mu       sync.Mutex
	handlers map[string]func() (int, []byte, error)

	inFlight  int32
	maxInFlight int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{handlers: map[string]func() (int, []byte, error){}}
}

func (f *fakeFetcher) on(url string, status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[url] = func() (int, []byte, error) { return status, body, nil }
}

func (f *fakeFetcher) Get(ctx context.Context, url string, _ map[string]string) (int, []byte, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		old := atomic.LoadInt32(&f.maxInFlight)
		if cur <= old || atomic.CompareAndSwapInt32(&f.maxInFlight, old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	h, ok := f.handlers[url]
	f.mu.Unlock()
	if !ok {
		return 404, nil, nil
	}
	return h()
}

func encryptSegment(t *testing.T, plaintext, key, iv []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out
}

func TestSegmentFetcher_HappyPathRespectsConcurrency(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	ivHex := hex.EncodeToString(iv)

	fetcher := newFakeFetcher()
	segments := make([]hls.Segment, 0, 10)
	for i := 0; i < 10; i++ {
		name := itoaTS(i)
		plaintext := make([]byte, 32)
		ciphertext := encryptSegment(t, plaintext, key, iv)
		fetcher.on("https://host/"+name, 200, ciphertext)
		segments = append(segments, hls.Segment{URI: name})
	}

	sf := NewSegmentFetcher(fetcher, temp, RetryPolicy{Count: 2, Base: time.Millisecond}, 3, nil)
	result, err := sf.RunWave(context.Background(), "abp-933", "https://host/", key, ivHex, segments)
	require.NoError(t, err)
	assert.False(t, result.Expired)
	assert.Empty(t, result.Failed)
	assert.LessOrEqual(t, int(fetcher.maxInFlight), 3)

	inv := NewInventory(NewDownloadInfoStore(filepath.Join(tmp, "download_info.json")), temp)
	pl := &hls.Playlist{Segments: segments}
	pending, err := inv.Compute("abp-933", pl)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSegmentFetcher_ForbiddenAbortsWave(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	fetcher := newFakeFetcher()
	fetcher.on("https://host/0.ts", 200, make([]byte, 32))
	fetcher.on("https://host/1.ts", 403, nil)

	segments := []hls.Segment{{URI: "0.ts"}, {URI: "1.ts"}}
	sf := NewSegmentFetcher(fetcher, temp, RetryPolicy{Count: 2, Base: time.Millisecond}, 2, nil)

	_, err := sf.RunWave(context.Background(), "abp-933", "https://host/", []byte("0123456789abcdef"), hex.EncodeToString(make([]byte, 16)), segments)
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestSegmentFetcher_ExpiredSignalsRefreshWithoutError(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	fetcher := newFakeFetcher()
	fetcher.on("https://host/0.ts", 410, nil)

	segments := []hls.Segment{{URI: "0.ts"}}
	sf := NewSegmentFetcher(fetcher, temp, RetryPolicy{Count: 2, Base: time.Millisecond}, 2, nil)

	result, err := sf.RunWave(context.Background(), "abp-933", "https://host/", []byte("0123456789abcdef"), hex.EncodeToString(make([]byte, 16)), segments)
	require.NoError(t, err)
	assert.True(t, result.Expired)
}

func TestSegmentFetcher_RetriesTransportErrorsThenFails(t *testing.T) {
	tmp := t.TempDir()
	temp := NewTempStore(tmp)
	require.NoError(t, temp.InitDirs("abp-933"))

	fetcher := newFakeFetcher() // unregistered URL -> 404 every time, below NotFound threshold handling (segment fetcher has none, so it just retries and fails)
	segments := []hls.Segment{{URI: "0.ts"}}
	sf := NewSegmentFetcher(fetcher, temp, RetryPolicy{Count: 3, Base: time.Millisecond}, 2, nil)

	result, err := sf.RunWave(context.Background(), "abp-933", "https://host/", []byte("0123456789abcdef"), hex.EncodeToString(make([]byte, 16)), segments)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "0.ts", result.Failed[0].URI)
}

package hls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-KEY:METHOD=AES-128,URI="https://host/key?id=abp-933",IV=0x0123456789abcdef0123456789abcdef
#EXT-X-TARGETDURATION:6
#EXTINF:6.000,
0.ts
#EXTINF:6.000,
1.ts
#EXTINF:3.500,
2.ts
#EXT-X-ENDLIST
`

func TestParse_HappyPath(t *testing.T) {
	pl, err := Parse(samplePlaylist)
	require.NoError(t, err)

	require.Len(t, pl.Segments, 3)
	assert.Equal(t, "0.ts", pl.Segments[0].URI)
	assert.Equal(t, "2.ts", pl.Segments[2].URI)
	assert.InDelta(t, 3.5, pl.Segments[2].Duration, 0.001)

	require.NotNil(t, pl.Key)
	assert.Equal(t, "AES-128", pl.Key.Method)
	assert.Equal(t, "https://host/key?id=abp-933", pl.Key.URI)
	assert.Equal(t, "0x0123456789abcdef0123456789abcdef", pl.Key.IV)
}

func TestParse_IVWithoutPrefix(t *testing.T) {
	raw := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="https://host/key",IV=0123456789ABCDEF0123456789ABCDEF
0.ts
`
	pl, err := Parse(raw)
	require.NoError(t, err)
	require.NotNil(t, pl.Key)
	assert.Equal(t, "0x0123456789ABCDEF0123456789ABCDEF", pl.Key.IV)
}

func TestParse_EmptyPlaylistRejected(t *testing.T) {
	_, err := Parse("#EXTM3U\n#EXT-X-ENDLIST\n")
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestParse_NoKeyIsValid(t *testing.T) {
	raw := "#EXTM3U\n0.ts\n1.ts\n"
	pl, err := Parse(raw)
	require.NoError(t, err)
	assert.Nil(t, pl.Key)
	assert.Len(t, pl.Segments, 2)
}

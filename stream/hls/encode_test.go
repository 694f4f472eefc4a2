package hls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	// A parsed playlist re-encodes to text that parses to the same
	// structure. Unrecognized tags are dropped, so Headers is excluded
	// from the comparison.
	fixtures := map[string]string{
		"media":          TestMediaPlaylist,
		"live":           TestLivePlaylist,
		"encrypted":      TestEncryptedPlaylist,
		"sample-aes":     TestSampleAESPlaylist,
		"byteranges":     TestByteRangePlaylist,
		"map":            TestMapPlaylist,
		"discontinuity":  TestDiscontinuityPlaylist,
		"dateranges":     TestDateRangePlaylist,
		"master":         TestMasterPlaylist,
		"master-audio":   TestMasterPlaylistWithAudio,
		"bandwidth-only": TestMasterPlaylistBandwidthOnly,
	}

	parser := NewParser()
	for name, fixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			first, err := parser.Parse(strings.NewReader(fixture), "")
			require.NoError(t, err)

			encoded := first.Encode().String()
			second, err := parser.Parse(strings.NewReader(encoded), "")
			require.NoError(t, err, "re-encoded playlist failed to parse:\n%s", encoded)

			first.Headers = nil
			second.Headers = nil
			assert.Equal(t, first, second, "round trip diverged:\n%s", encoded)
		})
	}
}

func TestEncodeMediaPlaylist(t *testing.T) {
	parser := NewParser()
	playlist, err := parser.Parse(strings.NewReader(TestMediaPlaylist), "")
	require.NoError(t, err)

	out := playlist.String()

	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	assert.Contains(t, out, "#EXT-X-TARGETDURATION:10")
	assert.Contains(t, out, "#EXTINF:9.009,\nsegment0.ts")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "#EXT-X-ENDLIST"))
}

func TestEncodeLivePlaylistHasNoEndlist(t *testing.T) {
	parser := NewParser()
	playlist, err := parser.Parse(strings.NewReader(TestLivePlaylist), "")
	require.NoError(t, err)

	assert.NotContains(t, playlist.String(), "#EXT-X-ENDLIST")
}

func TestEncodeStickyKeyEmittedOnce(t *testing.T) {
	parser := NewParser()
	playlist, err := parser.Parse(strings.NewReader(TestEncryptedPlaylist), "")
	require.NoError(t, err)

	out := playlist.String()

	// One AES key tag for the run of encrypted segments, one NONE tag
	// where encryption stops
	assert.Equal(t, 1, strings.Count(out, "#EXT-X-KEY:METHOD=AES-128"))
	assert.Equal(t, 1, strings.Count(out, "#EXT-X-KEY:METHOD=NONE"))
	assert.Equal(t, 1, strings.Count(out, "IV=0x00000000000000000000000000000001"))
}

func TestEncodeMapEmittedOnce(t *testing.T) {
	parser := NewParser()
	playlist, err := parser.Parse(strings.NewReader(TestMapPlaylist), "")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(playlist.String(), "#EXT-X-MAP:"))
}

package hls

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/segmented/stream/common"
)

func testConfig() *Config {
	config := DefaultConfig()
	config.StreamTimeout = 5 * time.Second
	config.SegmentTimeout = 5 * time.Second
	return config
}

func openTestStream(t *testing.T, url string, config *Config) *Reader {
	t.Helper()
	s, err := NewStream(url, QualityBest, config)
	require.NoError(t, err)

	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return rc.(*Reader)
}

func vodPlaylist(segmentURIs []string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, uri := range segmentURIs {
		b.WriteString("#EXTINF:10.0,\n")
		b.WriteString(uri)
		b.WriteByte('\n')
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

func segmentPayload(i int) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("segment-%03d|", i)), 64)
}

func TestStreamDeliversSegmentsInOrder(t *testing.T) {
	// Parallel fetchers with randomized response delays must not change
	// the committed byte order
	const numSegments = 20

	uris := make([]string, numSegments)
	var expected bytes.Buffer
	for i := range uris {
		uris[i] = fmt.Sprintf("seg%d.ts", i)
		expected.Write(segmentPayload(i))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist(uris))
	})
	for i := range uris {
		i := i
		mux.HandleFunc("/"+uris[i], func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Duration(rand.Intn(30)) * time.Millisecond)
			w.Write(segmentPayload(i))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.SegmentThreads = 4
	config.RingBufferBytes = 4096 // force writer backpressure

	reader := openTestStream(t, server.URL+"/stream.m3u8", config)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, expected.Bytes(), got)

	stats := reader.Stats()
	assert.Equal(t, numSegments, stats.SegmentsReceived)
	assert.Equal(t, int64(expected.Len()), stats.BytesReceived)
}

func TestStreamBoundsFetchAheadForStalledReader(t *testing.T) {
	// With nobody reading, the pipeline may fetch at most a ring's worth
	// of segments plus one per fetcher thread before blocking
	const numSegments = 12
	payload := bytes.Repeat([]byte("x"), 1024)

	var requested atomic.Int32
	uris := make([]string, numSegments)
	for i := range uris {
		uris[i] = fmt.Sprintf("seg%d.ts", i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist(uris))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requested.Add(1)
		w.Write(payload)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.SegmentThreads = 2
	config.RingBufferBytes = 2 * len(payload)

	reader := openTestStream(t, server.URL+"/stream.m3u8", config)

	// Leave the reader idle until the fetchers have blocked
	time.Sleep(600 * time.Millisecond)

	maxAhead := config.RingBufferBytes/len(payload) + config.SegmentThreads
	fetched := int(requested.Load())
	assert.LessOrEqual(t, fetched, maxAhead)
	assert.Less(t, fetched, numSegments)

	// Draining the reader unblocks the pipeline and the rest arrives
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat(payload, numSegments), got)
	assert.Equal(t, numSegments, int(requested.Load()))
}

func encryptCBC(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte(nil), plaintext...),
		bytes.Repeat([]byte{byte(padding)}, padding)...)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func TestStreamDecryptsAES128(t *testing.T) {
	key := []byte("0123456789abcdef")
	explicitIV := []byte{0: 0xAA, 15: 0x01}

	plain0 := []byte("first encrypted segment payload")
	plain1 := []byte("second encrypted segment payload, longer than one block")

	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:5
#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0xaa000000000000000000000000000001
#EXTINF:10.0,
seg5.ts
#EXT-X-KEY:METHOD=AES-128,URI="key.bin"
#EXTINF:10.0,
seg6.ts
#EXT-X-ENDLIST`

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, playlist)
	})
	mux.HandleFunc("/key.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write(key)
	})
	mux.HandleFunc("/seg5.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write(encryptCBC(t, key, explicitIV, plain0))
	})
	mux.HandleFunc("/seg6.ts", func(w http.ResponseWriter, r *http.Request) {
		// No IV attribute: the IV is the big-endian sequence number
		w.Write(encryptCBC(t, key, sequenceIV(6), plain1))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())
	got, err := io.ReadAll(reader)
	require.NoError(t, err)

	assert.Equal(t, append(append([]byte(nil), plain0...), plain1...), got)
}

func TestStreamSampleAESFailsFast(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, TestSampleAESPlaylist)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewStream(server.URL+"/stream.m3u8", QualityBest, testConfig())
	require.NoError(t, err)

	_, err = s.Open(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsDRMError(err))
}

func TestStreamFiltersSegments(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,content
c0.ts
#EXTINF:10.0,ad
a0.ts
#EXTINF:10.0,ad
a1.ts
#EXTINF:10.0,content
c1.ts
#EXT-X-ENDLIST`

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, playlist)
	})
	for _, uri := range []string{"c0.ts", "a0.ts", "a1.ts", "c1.ts"} {
		uri := uri
		mux.HandleFunc("/"+uri, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, uri+"-data|")
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.Filter = func(segment *M3U8Segment) bool {
		return segment.Title == "ad"
	}

	reader := openTestStream(t, server.URL+"/stream.m3u8", config)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)

	assert.Equal(t, "c0.ts-data|c1.ts-data|", string(got))
	assert.Equal(t, 2, reader.Stats().SegmentsFiltered)
}

func TestStreamAllSegmentsFilteredEndsCleanly(t *testing.T) {
	// When everything is dropped the reader must still see a clean end
	// of stream once the pipeline finishes, not a stall
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"seg0.ts", "seg1.ts"}))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.Filter = func(segment *M3U8Segment) bool { return true }

	reader := openTestStream(t, server.URL+"/stream.m3u8", config)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStreamPrependsInitSection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, TestMapPlaylist)
	})
	mux.HandleFunc("/init.mp4", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "INIT|")
	})
	mux.HandleFunc("/segment0.m4s", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "seg0|")
	})
	mux.HandleFunc("/segment1.m4s", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "seg1|")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())
	got, err := io.ReadAll(reader)
	require.NoError(t, err)

	// The init section appears once, before the first segment only
	assert.Equal(t, "INIT|seg0|seg1|", string(got))
}

func TestStreamByteRanges(t *testing.T) {
	media := []byte("AAAAAAAAAABBBBBBBBBBCCCCCCCCCC")

	playlist := `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
#EXT-X-BYTERANGE:10@0
media.ts
#EXTINF:10.0,
#EXT-X-BYTERANGE:10
media.ts
#EXTINF:10.0,
#EXT-X-BYTERANGE:10
media.ts
#EXT-X-ENDLIST`

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, playlist)
	})
	mux.HandleFunc("/media.ts", func(w http.ResponseWriter, r *http.Request) {
		var start, end int
		_, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end)
		if err != nil || start < 0 || end >= len(media) || start > end {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		w.WriteHeader(http.StatusPartialContent)
		w.Write(media[start : end+1])
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, media, got)
}

func TestStreamVODSegmentFailureIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"good.ts", "missing.ts"}))
	})
	mux.HandleFunc("/good.ts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "good")
	})
	mux.HandleFunc("/missing.ts", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())
	_, err := io.ReadAll(reader)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeSegment))
}

func TestStreamRetriesTransientSegmentFailures(t *testing.T) {
	var attempts int
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"flaky.ts"}))
	})
	mux.HandleFunc("/flaky.ts", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "recovered")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(got))
	assert.Equal(t, 3, attempts)
}

func TestStreamRequestOptionsApplied(t *testing.T) {
	var gotHeader, gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"seg0.ts"}))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Auth")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		io.WriteString(w, "data")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.HTTP.Headers = map[string]string{"X-Auth": "token123"}
	config.HTTP.Cookies = map[string]string{"session": strconv.Itoa(42)}

	reader := openTestStream(t, server.URL+"/stream.m3u8", config)
	_, err := io.ReadAll(reader)
	require.NoError(t, err)

	assert.Equal(t, "token123", gotHeader)
	assert.Equal(t, "42", gotCookie)
}

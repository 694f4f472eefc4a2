package hls

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/segmented/stream/common"
)

func TestReaderEOFAfterVOD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"seg0.ts"}))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	// Every read after the drain keeps reporting EOF
	n, err := reader.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
}

func TestReaderStallTimeout(t *testing.T) {
	// A live playlist that never grows: after the initial segments are
	// drained, reads must give up with a stall error instead of
	// blocking forever
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:1.0,
seg0.ts
#EXTINF:1.0,
seg1.ts
#EXTINF:1.0,
seg2.ts
`

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, playlist)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "x")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.StreamTimeout = 200 * time.Millisecond

	reader := openTestStream(t, server.URL+"/stream.m3u8", config)

	buf := make([]byte, 64)
	var err error
	for {
		_, err = reader.Read(buf)
		if err != nil {
			break
		}
	}
	assert.True(t, common.IsStallError(err), "expected a stall error, got %v", err)

	// The stall stops the worker and writer, not just the read
	select {
	case <-reader.done:
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline kept running after the stall")
	}

	// Later reads keep reporting the stall
	_, err = reader.Read(buf)
	assert.True(t, common.IsStallError(err))
}

func TestReaderCloseIdempotent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"seg0.ts"}))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/stream.m3u8", testConfig())

	assert.NoError(t, reader.Close())
	assert.NoError(t, reader.Close())

	n, err := reader.Read(make([]byte, 16))
	_ = n
	assert.Equal(t, io.EOF, err)
}

func TestReaderContextCancelStopsPipeline(t *testing.T) {
	// A cancelled context tears the pipeline down; the reader sees a
	// clean end of stream rather than an error
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:1.0,
seg0.ts
`

	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, playlist)
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewStream(server.URL+"/stream.m3u8", QualityBest, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rc, err := s.Open(ctx)
	require.NoError(t, err)
	defer rc.Close()

	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, rc)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not observe pipeline shutdown")
	}
}

func TestReaderResolvesMasterPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=852x480
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
high/index.m3u8`)
	})
	mux.HandleFunc("/high/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPlaylist([]string{"seg0.ts"}))
	})
	mux.HandleFunc("/high/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "high quality bytes")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := openTestStream(t, server.URL+"/master.m3u8", testConfig())
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "high quality bytes", string(got))
}

func TestReaderOpenErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/empty.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/garbage.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not a playlist</html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Run("playlist without segments", func(t *testing.T) {
		s, err := NewStream(server.URL+"/empty.m3u8", QualityBest, testConfig())
		require.NoError(t, err)

		_, err = s.Open(context.Background())
		require.Error(t, err)
		assert.True(t, common.HasCode(err, common.ErrCodeResolve))
	})

	t.Run("not a playlist", func(t *testing.T) {
		s, err := NewStream(server.URL+"/garbage.m3u8", QualityBest, testConfig())
		require.NoError(t, err)

		_, err = s.Open(context.Background())
		require.Error(t, err)
		assert.True(t, common.HasCode(err, common.ErrCodeParse))
	})

	t.Run("missing playlist", func(t *testing.T) {
		s, err := NewStream(server.URL+"/nope.m3u8", QualityBest, testConfig())
		require.NoError(t, err)

		_, err = s.Open(context.Background())
		require.Error(t, err)
	})

	t.Run("invalid URL rejected up front", func(t *testing.T) {
		_, err := NewStream("not-a-url", QualityBest, testConfig())
		require.Error(t, err)
		assert.True(t, common.HasCode(err, common.ErrCodeResolve))
	})
}

// Package stream provides the stream variant registry: a factory that
// creates the right Stream implementation for a URL, a detector that
// classifies URLs by scheme, extension and a lightweight probe, and the
// non-segmented HTTP and file stream variants. The HLS variant lives in
// the hls subpackage.
package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/streamkit/segmented/stream/common"
)

// HTTPStream is a plain progressive-download stream. Open issues a
// single GET and hands back the response body.
type HTTPStream struct {
	url    string
	opts   common.HTTPOptions
	client *http.Client
}

// NewHTTPStream creates a progressive HTTP stream
func NewHTTPStream(url string, opts common.HTTPOptions) (*HTTPStream, error) {
	if !common.IsValidURL(url) {
		return nil, common.NewStreamError(common.StreamTypeHTTP, url,
			common.ErrCodeResolve, "invalid stream URL", nil)
	}
	client, err := common.NewClient(opts)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHTTP, url,
			common.ErrCodeConnection, "building HTTP client failed", err)
	}
	return &HTTPStream{url: url, opts: opts, client: client}, nil
}

func (s *HTTPStream) Type() common.StreamType {
	return common.StreamTypeHTTP
}

func (s *HTTPStream) URL() string {
	return s.url
}

func (s *HTTPStream) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHTTP, s.url,
			common.ErrCodeResolve, "invalid stream URL", err)
	}
	common.ApplyRequestOptions(req, s.opts)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHTTP, s.url,
			common.ErrCodeConnection, "stream request failed", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, common.NewStreamError(common.StreamTypeHTTP, s.url,
			common.ErrCodeConnection,
			fmt.Sprintf("stream request returned HTTP %d", resp.StatusCode), nil)
	}
	return resp.Body, nil
}

// FileStream reads a local media file. Mostly useful for testing
// pipelines without a network.
type FileStream struct {
	path string
}

// NewFileStream creates a stream over a local file. Accepts both plain
// paths and file:// URLs.
func NewFileStream(path string) *FileStream {
	return &FileStream{path: strings.TrimPrefix(path, "file://")}
}

func (s *FileStream) Type() common.StreamType {
	return common.StreamTypeFile
}

func (s *FileStream) URL() string {
	return s.path
}

func (s *FileStream) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeFile, s.path,
			common.ErrCodeResolve, "opening file failed", err)
	}
	return f, nil
}

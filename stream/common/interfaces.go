package common

import (
	"context"
	"io"
	"time"
)

// StreamType represents the kind of stream a URL points at
type StreamType string

const (
	StreamTypeHLS         StreamType = "hls"
	StreamTypeHTTP        StreamType = "http"
	StreamTypeFile        StreamType = "file"
	StreamTypeUnsupported StreamType = "unsupported"
)

// HTTPOptions carries the per-stream HTTP request state. It is immutable
// once a stream is opened; every playlist, key and segment request inherits
// it unchanged.
type HTTPOptions struct {
	Headers   map[string]string `json:"headers,omitempty"`
	Cookies   map[string]string `json:"cookies,omitempty"`
	Timeout   time.Duration     `json:"timeout"`
	VerifyTLS bool              `json:"verify_tls"`
	Proxy     string            `json:"proxy,omitempty"`
}

// DefaultHTTPOptions returns options suitable for most streams
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		Headers:   make(map[string]string),
		Cookies:   make(map[string]string),
		Timeout:   20 * time.Second,
		VerifyTLS: true,
	}
}

// StreamStats contains streaming statistics maintained by the pipeline
type StreamStats struct {
	BytesReceived    int64         `json:"bytes_received"`
	SegmentsReceived int           `json:"segments_received,omitempty"`
	SegmentsFiltered int           `json:"segments_filtered,omitempty"`
	PlaylistReloads  int           `json:"playlist_reloads,omitempty"`
	ConnectionTime   time.Duration `json:"connection_time"`
	FirstByteTime    time.Duration `json:"first_byte_time"`
}

// Stream is the tagged-variant contract every stream format implements.
// Open starts the delivery pipeline and returns the byte source the
// consumer reads from; a zero-length read after completion signals EOF.
type Stream interface {
	// Type returns the stream variant tag
	Type() StreamType

	// URL returns the stream's manifest or media URL
	URL() string

	// Open starts delivery and returns the consumer-facing byte source
	Open(ctx context.Context) (io.ReadCloser, error)
}

// StreamDetector classifies URLs into stream variants
type StreamDetector interface {
	// DetectType determines the stream type from the URL and, when needed,
	// a lightweight header probe
	DetectType(ctx context.Context, url string) (StreamType, error)
}

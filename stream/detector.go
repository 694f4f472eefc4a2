package stream

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/common"
)

// hlsContentTypes are the Content-Type values that identify an HLS
// playlist when the URL alone is inconclusive
var hlsContentTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

// Detector classifies stream URLs. Cheap checks first: scheme, then
// file extension, then a single HEAD probe for the Content-Type.
type Detector struct {
	client *http.Client
}

// NewDetector creates a detector with a short probe timeout and a
// bounded redirect chain
func NewDetector() *Detector {
	return &Detector{
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// DetectType implements common.StreamDetector
func (d *Detector) DetectType(ctx context.Context, rawURL string) (common.StreamType, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return common.StreamTypeUnsupported, common.NewStreamError(
			common.StreamTypeUnsupported, rawURL,
			common.ErrCodeResolve, "invalid stream URL", err)
	}

	switch parsed.Scheme {
	case "file", "":
		return common.StreamTypeFile, nil
	case "http", "https":
	default:
		return common.StreamTypeUnsupported, common.NewStreamError(
			common.StreamTypeUnsupported, rawURL,
			common.ErrCodeResolve, "unsupported URL scheme: "+parsed.Scheme, nil)
	}

	switch strings.ToLower(path.Ext(parsed.Path)) {
	case ".m3u8", ".m3u":
		return common.StreamTypeHLS, nil
	}

	if streamType := d.probe(ctx, rawURL); streamType != common.StreamTypeUnsupported {
		return streamType, nil
	}

	// An http URL with no HLS markers is still servable progressively
	return common.StreamTypeHTTP, nil
}

// probe issues a HEAD request and classifies by Content-Type. Probe
// failures are not fatal; the caller falls back to progressive HTTP.
func (d *Detector) probe(ctx context.Context, rawURL string) common.StreamType {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return common.StreamTypeUnsupported
	}

	resp, err := d.client.Do(req)
	if err != nil {
		logging.Debug("stream type probe failed", logging.Fields{
			"component": "stream_detector",
			"url":       rawURL,
			"error":     err.Error(),
		})
		return common.StreamTypeUnsupported
	}
	defer resp.Body.Close()

	contentType := common.ExtractContentType(resp.Header.Get("Content-Type"))
	if hlsContentTypes[contentType] {
		return common.StreamTypeHLS
	}
	return common.StreamTypeUnsupported
}

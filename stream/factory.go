package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/streamkit/segmented/stream/common"
	"github.com/streamkit/segmented/stream/hls"
)

// Options carries the per-stream settings the factory hands to the
// variant it creates
type Options struct {
	// Quality selects the HLS variant: "best", "worst" or e.g. "720p"
	Quality string

	// HLS overrides the HLS runtime configuration; nil uses defaults
	HLS *hls.Config

	// HTTP carries request options for non-segmented streams
	HTTP common.HTTPOptions
}

// DefaultOptions returns the default factory options
func DefaultOptions() Options {
	return Options{
		Quality: hls.QualityBest,
		HTTP:    common.DefaultHTTPOptions(),
	}
}

// OpenerFunc creates a Stream for a URL
type OpenerFunc func(url string, opts Options) (common.Stream, error)

// Factory maintains a thread-safe registry of stream openers keyed by
// stream type. It registers factory functions rather than instances, so
// every stream gets fresh state and concurrent opens stay isolated.
type Factory struct {
	openers  map[common.StreamType]OpenerFunc
	detector common.StreamDetector
	mu       sync.RWMutex
}

// NewFactory creates a factory pre-registered with the HLS, HTTP and
// file stream variants and a default detector
func NewFactory() *Factory {
	f := &Factory{
		openers:  make(map[common.StreamType]OpenerFunc),
		detector: NewDetector(),
	}

	f.Register(common.StreamTypeHLS, func(url string, opts Options) (common.Stream, error) {
		return hls.NewStream(url, opts.Quality, opts.HLS)
	})
	f.Register(common.StreamTypeHTTP, func(url string, opts Options) (common.Stream, error) {
		return NewHTTPStream(url, opts.HTTP)
	})
	f.Register(common.StreamTypeFile, func(url string, opts Options) (common.Stream, error) {
		return NewFileStream(url), nil
	})

	return f
}

// Register adds or replaces the opener for a stream type. Thread-safe.
func (f *Factory) Register(streamType common.StreamType, opener OpenerFunc) {
	f.mu.Lock()
	f.openers[streamType] = opener
	f.mu.Unlock()
}

// CreateStream creates a stream of a known type for the given URL
func (f *Factory) CreateStream(streamType common.StreamType, url string, opts Options) (common.Stream, error) {
	f.mu.RLock()
	opener, exists := f.openers[streamType]
	f.mu.RUnlock()

	if !exists {
		return nil, common.NewStreamError(streamType, url, common.ErrCodeResolve,
			fmt.Sprintf("unsupported stream type: %s", streamType), nil)
	}
	return opener(url, opts)
}

// DetectAndCreate detects the stream type for a URL and creates the
// matching stream in one step
func (f *Factory) DetectAndCreate(ctx context.Context, url string, opts Options) (common.Stream, error) {
	streamType, err := f.detector.DetectType(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.CreateStream(streamType, url, opts)
}

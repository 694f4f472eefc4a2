package hls

import (
	"context"
	"io"
	"net/http"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/common"
)

// Stream is an HLS stream source. Open resolves the playlist, starts the
// segment pipeline and returns a Reader over the stream bytes.
type Stream struct {
	url     string
	quality string
	config  *Config
	client  *http.Client
}

// NewStream creates an HLS stream for a playlist URL. Quality selects
// the variant when the URL points at a master playlist: "best", "worst"
// or a height such as "720p".
func NewStream(url, quality string, config *Config) (*Stream, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !common.IsValidURL(url) {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeResolve, "invalid stream URL", nil)
	}

	client, err := common.NewClient(config.HTTP)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeConnection, "building HTTP client failed", err)
	}

	return &Stream{
		url:     url,
		quality: quality,
		config:  config,
		client:  client,
	}, nil
}

// Type implements common.Stream
func (s *Stream) Type() common.StreamType {
	return common.StreamTypeHLS
}

// URL implements common.Stream
func (s *Stream) URL() string {
	return s.url
}

// Open resolves the playlist chain down to a media playlist and starts
// the delivery pipeline. The returned reader delivers decrypted,
// in-order segment bytes; cancelling ctx stops the pipeline.
func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	playlist, err := fetchPlaylist(ctx, s.client, s.config, s.url)
	if err != nil {
		return nil, err
	}

	mediaURL := s.url
	if playlist.IsMaster {
		variant, err := ResolveVariant(playlist, s.quality)
		if err != nil {
			return nil, err
		}

		fields := logging.Fields{
			"component": "hls_stream",
			"bandwidth": variant.Bandwidth,
		}
		if variant.Resolution != "" {
			fields["resolution"] = variant.Resolution
		}
		if rendition := SelectAudioRendition(playlist, variant, s.config.AudioLanguages); rendition != nil {
			fields["audio"] = rendition.Name
			if rendition.Language != "" {
				fields["audio_language"] = rendition.Language
			}
		}
		logging.Info("selected variant stream", fields)

		mediaURL = variant.URI
		playlist, err = fetchPlaylist(ctx, s.client, s.config, mediaURL)
		if err != nil {
			return nil, err
		}
		if playlist.IsMaster {
			return nil, common.NewStreamError(common.StreamTypeHLS, mediaURL,
				common.ErrCodeResolve, "variant resolved to another master playlist", nil)
		}
	}

	if err := checkPlayable(playlist); err != nil {
		return nil, err
	}

	logging.Info("opening stream", logging.Fields{
		"component":       "hls_stream",
		"url":             mediaURL,
		"live":            playlist.IsLive,
		"segments":        len(playlist.Segments),
		"target_duration": playlist.TargetDuration,
	})

	return openPipeline(ctx, s.client, s.config, mediaURL, playlist), nil
}

// checkPlayable fails fast on playlists the pipeline cannot deliver,
// before any segment is fetched
func checkPlayable(playlist *M3U8Playlist) error {
	if len(playlist.Segments) == 0 && playlist.IsVOD() {
		return common.NewStreamError(common.StreamTypeHLS, playlist.URL,
			common.ErrCodeResolve, "playlist has no segments", nil)
	}
	for i := range playlist.Segments {
		key := playlist.Segments[i].Key
		if key.Encrypted() && key.Method != KeyMethodAES128 {
			return common.NewStreamError(common.StreamTypeHLS, playlist.URL,
				common.ErrCodeDRM,
				"stream is protected by an unsupported encryption method: "+key.Method, nil)
		}
	}
	return nil
}

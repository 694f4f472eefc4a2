package hls

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamkit/segmented/stream/buffer"
	"github.com/streamkit/segmented/stream/common"
)

// Reload cadence bounds for live playlists
const (
	MinReloadInterval = 2 * time.Second
	MaxReloadInterval = 6 * time.Second
)

// Reload time modes accepted by Config.PlaylistReloadTime, besides a
// numeric seconds value
const (
	ReloadTimeDefault  = "default"
	ReloadTimeSegment  = "segment"
	ReloadTimeLiveEdge = "live-edge"
)

// FilterFunc decides whether a segment is dropped from the output.
// Returning true drops the segment.
type FilterFunc func(segment *M3U8Segment) bool

// Config holds the runtime configuration for one HLS stream
type Config struct {
	// RingBufferBytes is the output buffer capacity
	RingBufferBytes int `json:"ringbuffer_bytes" yaml:"ringbuffer_bytes"`

	// LiveEdge is how many segments back from the end live playback begins
	LiveEdge int `json:"live_edge" yaml:"live_edge"`

	// SegmentAttempts is the per-segment fetch attempt count
	SegmentAttempts int `json:"segment_attempts" yaml:"segment_attempts"`

	// SegmentThreads is the number of parallel segment fetchers
	SegmentThreads int `json:"segment_threads" yaml:"segment_threads"`

	// SegmentTimeout bounds a single segment request
	SegmentTimeout time.Duration `json:"segment_timeout" yaml:"segment_timeout"`

	// PlaylistReloadAttempts is the live playlist reload attempt count
	PlaylistReloadAttempts int `json:"playlist_reload_attempts" yaml:"playlist_reload_attempts"`

	// PlaylistReloadTime overrides the reload cadence base: "default",
	// "segment", "live-edge", or a number of seconds
	PlaylistReloadTime string `json:"playlist_reload_time" yaml:"playlist_reload_time"`

	// StreamTimeout is the maximum stall tolerated by the reader
	StreamTimeout time.Duration `json:"stream_timeout" yaml:"stream_timeout"`

	// AudioLanguages lists preferred languages for alternate audio
	// rendition selection, most preferred first
	AudioLanguages []string `json:"audio_languages,omitempty" yaml:"audio_languages,omitempty"`

	// Filter is the segment filter hook. Nil accepts everything.
	Filter FilterFunc `json:"-" yaml:"-"`

	// HTTP carries the per-stream request options
	HTTP common.HTTPOptions `json:"http" yaml:"http"`
}

// DefaultConfig returns the default HLS runtime configuration
func DefaultConfig() *Config {
	return &Config{
		RingBufferBytes:        buffer.DefaultCapacity,
		LiveEdge:               3,
		SegmentAttempts:        3,
		SegmentThreads:         1,
		SegmentTimeout:         10 * time.Second,
		PlaylistReloadAttempts: 3,
		PlaylistReloadTime:     ReloadTimeDefault,
		StreamTimeout:          60 * time.Second,
		HTTP:                   common.DefaultHTTPOptions(),
	}
}

// yamlConfig is the on-disk shape of Config; durations are seconds
type yamlConfig struct {
	RingBufferBytes        *int      `yaml:"ringbuffer_bytes"`
	LiveEdge               *int      `yaml:"live_edge"`
	SegmentAttempts        *int      `yaml:"segment_attempts"`
	SegmentThreads         *int      `yaml:"segment_threads"`
	SegmentTimeout         *float64  `yaml:"segment_timeout"`
	PlaylistReloadAttempts *int      `yaml:"playlist_reload_attempts"`
	PlaylistReloadTime     *string   `yaml:"playlist_reload_time"`
	StreamTimeout          *float64  `yaml:"stream_timeout"`
	AudioLanguages         []string  `yaml:"audio_languages"`
	HTTP                   *yamlHTTP `yaml:"http"`
}

type yamlHTTP struct {
	Headers   map[string]string `yaml:"headers"`
	Cookies   map[string]string `yaml:"cookies"`
	Timeout   *float64          `yaml:"timeout"`
	VerifyTLS *bool             `yaml:"verify_tls"`
	Proxy     *string           `yaml:"proxy"`
}

// ConfigFromYAML builds a Config from YAML, starting at the defaults and
// overriding only the keys present in the document
func ConfigFromYAML(data []byte) (*Config, error) {
	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, "",
			common.ErrCodeParse, "invalid configuration", err)
	}

	config := DefaultConfig()

	if raw.RingBufferBytes != nil {
		config.RingBufferBytes = *raw.RingBufferBytes
	}
	if raw.LiveEdge != nil {
		config.LiveEdge = *raw.LiveEdge
	}
	if raw.SegmentAttempts != nil {
		config.SegmentAttempts = *raw.SegmentAttempts
	}
	if raw.SegmentThreads != nil {
		config.SegmentThreads = *raw.SegmentThreads
	}
	if raw.SegmentTimeout != nil {
		config.SegmentTimeout = secondsToDuration(*raw.SegmentTimeout)
	}
	if raw.PlaylistReloadAttempts != nil {
		config.PlaylistReloadAttempts = *raw.PlaylistReloadAttempts
	}
	if raw.PlaylistReloadTime != nil {
		config.PlaylistReloadTime = *raw.PlaylistReloadTime
	}
	if raw.StreamTimeout != nil {
		config.StreamTimeout = secondsToDuration(*raw.StreamTimeout)
	}
	if raw.AudioLanguages != nil {
		config.AudioLanguages = raw.AudioLanguages
	}
	if raw.HTTP != nil {
		if raw.HTTP.Headers != nil {
			config.HTTP.Headers = raw.HTTP.Headers
		}
		if raw.HTTP.Cookies != nil {
			config.HTTP.Cookies = raw.HTTP.Cookies
		}
		if raw.HTTP.Timeout != nil {
			config.HTTP.Timeout = secondsToDuration(*raw.HTTP.Timeout)
		}
		if raw.HTTP.VerifyTLS != nil {
			config.HTTP.VerifyTLS = *raw.HTTP.VerifyTLS
		}
		if raw.HTTP.Proxy != nil {
			config.HTTP.Proxy = *raw.HTTP.Proxy
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RingBufferBytes <= 0 {
		return configError("ringbuffer size must be positive")
	}
	if c.LiveEdge < 1 {
		return configError("live edge must be at least 1")
	}
	if c.SegmentAttempts < 1 {
		return configError("segment attempts must be at least 1")
	}
	if c.SegmentThreads < 1 {
		return configError("segment threads must be at least 1")
	}
	if c.SegmentTimeout <= 0 {
		return configError("segment timeout must be positive")
	}
	if c.PlaylistReloadAttempts < 1 {
		return configError("playlist reload attempts must be at least 1")
	}
	if c.StreamTimeout <= 0 {
		return configError("stream timeout must be positive")
	}
	if _, err := c.reloadOverride(); err != nil {
		return err
	}
	return nil
}

// reloadOverride interprets PlaylistReloadTime. A zero duration with nil
// error means the mode is dynamic (default/segment/live-edge).
func (c *Config) reloadOverride() (time.Duration, error) {
	switch strings.TrimSpace(c.PlaylistReloadTime) {
	case "", ReloadTimeDefault, ReloadTimeSegment, ReloadTimeLiveEdge:
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(c.PlaylistReloadTime), 64)
	if err != nil || seconds <= 0 {
		return 0, configError("playlist reload time must be default, segment, live-edge or a positive number of seconds")
	}
	return secondsToDuration(seconds), nil
}

func configError(message string) error {
	return common.NewStreamError(common.StreamTypeHLS, "",
		common.ErrCodeParse, message, nil)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

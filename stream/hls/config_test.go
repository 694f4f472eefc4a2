package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 16*1024*1024, config.RingBufferBytes)
	assert.Equal(t, 3, config.LiveEdge)
	assert.Equal(t, 3, config.SegmentAttempts)
	assert.Equal(t, 1, config.SegmentThreads)
	assert.Equal(t, 10*time.Second, config.SegmentTimeout)
	assert.Equal(t, 3, config.PlaylistReloadAttempts)
	assert.Equal(t, ReloadTimeDefault, config.PlaylistReloadTime)
	assert.Equal(t, 60*time.Second, config.StreamTimeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero ringbuffer", func(c *Config) { c.RingBufferBytes = 0 }},
		{"zero live edge", func(c *Config) { c.LiveEdge = 0 }},
		{"zero segment attempts", func(c *Config) { c.SegmentAttempts = 0 }},
		{"zero segment threads", func(c *Config) { c.SegmentThreads = 0 }},
		{"zero segment timeout", func(c *Config) { c.SegmentTimeout = 0 }},
		{"zero reload attempts", func(c *Config) { c.PlaylistReloadAttempts = 0 }},
		{"zero stream timeout", func(c *Config) { c.StreamTimeout = 0 }},
		{"bad reload time", func(c *Config) { c.PlaylistReloadTime = "sometimes" }},
		{"negative reload time", func(c *Config) { c.PlaylistReloadTime = "-2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())
		})
	}

	t.Run("numeric reload time is valid", func(t *testing.T) {
		config := DefaultConfig()
		config.PlaylistReloadTime = "4.5"
		assert.NoError(t, config.Validate())

		interval, err := config.reloadOverride()
		require.NoError(t, err)
		assert.Equal(t, 4500*time.Millisecond, interval)
	})
}

func TestConfigFromYAML(t *testing.T) {
	t.Run("overrides only present keys", func(t *testing.T) {
		data := []byte(`
live_edge: 5
segment_threads: 4
segment_timeout: 2.5
playlist_reload_time: live-edge
http:
  timeout: 20
  verify_tls: false
  headers:
    User-Agent: testkit/1.0
`)
		config, err := ConfigFromYAML(data)
		require.NoError(t, err)

		assert.Equal(t, 5, config.LiveEdge)
		assert.Equal(t, 4, config.SegmentThreads)
		assert.Equal(t, 2500*time.Millisecond, config.SegmentTimeout)
		assert.Equal(t, ReloadTimeLiveEdge, config.PlaylistReloadTime)
		assert.Equal(t, 20*time.Second, config.HTTP.Timeout)
		assert.False(t, config.HTTP.VerifyTLS)
		assert.Equal(t, "testkit/1.0", config.HTTP.Headers["User-Agent"])

		// Untouched keys keep their defaults
		assert.Equal(t, DefaultConfig().RingBufferBytes, config.RingBufferBytes)
		assert.Equal(t, DefaultConfig().StreamTimeout, config.StreamTimeout)
	})

	t.Run("invalid YAML", func(t *testing.T) {
		_, err := ConfigFromYAML([]byte("segment_threads: [broken"))
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := ConfigFromYAML([]byte("live_edge: 0"))
		assert.Error(t, err)
	})

	t.Run("empty document keeps defaults", func(t *testing.T) {
		config, err := ConfigFromYAML([]byte(""))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().LiveEdge, config.LiveEdge)
	})
}

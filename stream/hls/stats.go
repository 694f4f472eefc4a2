package hls

import (
	"sync"
	"time"

	"github.com/streamkit/segmented/stream/common"
)

// streamStats accumulates counters across the pipeline goroutines
type streamStats struct {
	mu    sync.Mutex
	stats common.StreamStats
	start time.Time
}

func newStreamStats() *streamStats {
	return &streamStats{start: time.Now()}
}

func (s *streamStats) addBytes(n int64) {
	s.mu.Lock()
	s.stats.BytesReceived += n
	if s.stats.FirstByteTime == 0 {
		s.stats.FirstByteTime = time.Since(s.start)
	}
	s.mu.Unlock()
}

func (s *streamStats) addSegment() {
	s.mu.Lock()
	s.stats.SegmentsReceived++
	s.mu.Unlock()
}

func (s *streamStats) addFiltered() {
	s.mu.Lock()
	s.stats.SegmentsFiltered++
	s.mu.Unlock()
}

func (s *streamStats) addReload() {
	s.mu.Lock()
	s.stats.PlaylistReloads++
	s.mu.Unlock()
}

func (s *streamStats) setConnected() {
	s.mu.Lock()
	if s.stats.ConnectionTime == 0 {
		s.stats.ConnectionTime = time.Since(s.start)
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters
func (s *streamStats) Snapshot() common.StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/common"
)

// segmentJob is one segment queued for the writer. flush marks the first
// segment after a discontinuity: the writer drains in-flight fetches
// before dispatching it.
type segmentJob struct {
	segment M3U8Segment
	flush   bool
}

// worker reloads the media playlist and feeds new segments to the writer
// in playlist order. For VOD playlists it emits every segment once and
// stops; for live playlists it keeps reloading until the playlist ends
// or the context is cancelled.
type worker struct {
	client *http.Client
	config *Config
	url    string
	jobs   chan segmentJob
	fail   func(error)
	stats  *streamStats

	lastSequence  int64
	discontinuity int64
	started       bool

	// fingerprint of the previous reload, for the cadence halving rule
	reloadSequence int64
	reloadCount    int

	// initial, when set, is used for the first iteration instead of a
	// network fetch; Open already downloaded the playlist to resolve it
	initial *M3U8Playlist
}

func newWorker(client *http.Client, config *Config, url string, jobs chan segmentJob, fail func(error), stats *streamStats) *worker {
	return &worker{
		client:       client,
		config:       config,
		url:          url,
		jobs:         jobs,
		fail:         fail,
		stats:        stats,
		lastSequence: -1,
		reloadCount:  -1,
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.jobs)

	for {
		reloadStart := time.Now()

		playlist := w.initial
		w.initial = nil
		if playlist == nil {
			var err error
			playlist, err = w.reload(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.fail(err)
				}
				return
			}
		}

		fresh := w.freshSegments(playlist)
		changed := w.playlistChanged(playlist, fresh)

		for _, segment := range fresh {
			job := segmentJob{segment: segment}
			if segment.Discontinuity || playlist.DiscontinuitySequence > w.discontinuity {
				job.flush = true
				w.discontinuity = playlist.DiscontinuitySequence
			}
			select {
			case w.jobs <- job:
				w.lastSequence = segment.Sequence
			case <-ctx.Done():
				return
			}
		}
		w.discontinuity = playlist.DiscontinuitySequence

		if playlist.IsVOD() || !playlist.IsLive {
			logging.Debug("playlist ended, stopping reloads", logging.Fields{
				"component":     "hls_worker",
				"last_sequence": w.lastSequence,
			})
			return
		}

		interval := w.reloadInterval(playlist, fresh, changed)
		select {
		case <-time.After(time.Until(reloadStart.Add(interval))):
		case <-ctx.Done():
			return
		}
	}
}

// freshSegments returns the segments not yet handed to the writer. The
// first live reload starts a configurable distance back from the live
// edge instead of the playlist start.
func (w *worker) freshSegments(playlist *M3U8Playlist) []M3U8Segment {
	segments := playlist.Segments

	if !w.started {
		w.started = true
		if playlist.IsLive && !playlist.IsVOD() && len(segments) > w.config.LiveEdge {
			skipped := len(segments) - w.config.LiveEdge
			segments = segments[skipped:]
			logging.Debug("starting at live edge", logging.Fields{
				"component":      "hls_worker",
				"skipped":        skipped,
				"first_sequence": segments[0].Sequence,
			})
		}
		return segments
	}

	// Already running: keep only sequences past the last emitted one.
	// A playlist that slipped backwards yields nothing and resumes once
	// new sequences appear.
	first := len(segments)
	for i, segment := range segments {
		if segment.Sequence > w.lastSequence {
			first = i
			break
		}
	}
	fresh := segments[first:]

	if len(fresh) > 0 && fresh[0].Sequence > w.lastSequence+1 {
		logging.Warn("skipped segments missing from playlist", logging.Fields{
			"component":     "hls_worker",
			"last_sequence": w.lastSequence,
			"next_sequence": fresh[0].Sequence,
			"missed":        fresh[0].Sequence - w.lastSequence - 1,
		})
	}
	if len(fresh) == 0 && playlist.LastSequence() < w.lastSequence {
		logging.Warn("playlist went backwards, waiting for new segments", logging.Fields{
			"component":     "hls_worker",
			"last_sequence": w.lastSequence,
			"playlist_last": playlist.LastSequence(),
		})
	}
	return fresh
}

// playlistChanged reports whether this reload differs from the previous
// one. New sequences count, and so does rotation that only drops old
// segments: neither may halve the reload cadence.
func (w *worker) playlistChanged(playlist *M3U8Playlist, fresh []M3U8Segment) bool {
	changed := len(fresh) > 0 ||
		playlist.LastSequence() != w.reloadSequence ||
		len(playlist.Segments) != w.reloadCount
	w.reloadSequence = playlist.LastSequence()
	w.reloadCount = len(playlist.Segments)
	return changed
}

// reloadInterval computes the wait before the next reload. The base
// comes from the configured reload time mode, clamped to sane bounds,
// and is halved when the playlist did not change.
func (w *worker) reloadInterval(playlist *M3U8Playlist, fresh []M3U8Segment, changed bool) time.Duration {
	interval, _ := w.config.reloadOverride()

	if interval == 0 {
		switch w.config.PlaylistReloadTime {
		case ReloadTimeSegment:
			if len(fresh) > 0 {
				interval = secondsToDuration(fresh[len(fresh)-1].Duration)
			}
		case ReloadTimeLiveEdge:
			segments := playlist.Segments
			edge := w.config.LiveEdge
			if edge > len(segments) {
				edge = len(segments)
			}
			var sum float64
			for _, segment := range segments[len(segments)-edge:] {
				sum += segment.Duration
			}
			interval = secondsToDuration(sum)
		}
	}
	if interval == 0 {
		interval = time.Duration(playlist.TargetDuration) * time.Second
	}

	if interval < MinReloadInterval {
		interval = MinReloadInterval
	} else if interval > MaxReloadInterval {
		interval = MaxReloadInterval
	}

	if !changed {
		interval /= 2
		if interval < MinReloadInterval {
			interval = MinReloadInterval
		}
	}
	return interval
}

// reload fetches and parses the media playlist, retrying transient
// failures with exponential backoff
func (w *worker) reload(ctx context.Context) (*M3U8Playlist, error) {
	var lastErr error
	for attempt := 0; attempt < w.config.PlaylistReloadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(common.Backoff(attempt, time.Second, 10*time.Second)):
			case <-ctx.Done():
				return nil, cancelledError(w.url, ctx.Err())
			}
		}

		playlist, err := fetchPlaylist(ctx, w.client, w.config, w.url)
		if err == nil {
			if playlist.IsMaster {
				return nil, common.NewStreamError(common.StreamTypeHLS, w.url,
					common.ErrCodeParse, "expected media playlist, got master playlist", nil)
			}
			w.stats.addReload()
			return playlist, nil
		}

		lastErr = err
		if !common.HasCode(err, common.ErrCodeConnection) && !common.HasCode(err, common.ErrCodeSegment) {
			// Parse errors and the like do not heal with retries
			return nil, err
		}
		logging.Warn("playlist reload failed, retrying", logging.Fields{
			"component": "hls_worker",
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})
	}
	return nil, common.NewStreamError(common.StreamTypeHLS, w.url,
		common.ErrCodeResolve, "playlist reload attempts exhausted", lastErr)
}

// fetchPlaylist downloads and parses a playlist from the given URL
func fetchPlaylist(ctx context.Context, client *http.Client, config *Config, url string) (*M3U8Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeResolve, "invalid playlist URL", err)
	}
	common.ApplyRequestOptions(req, config.HTTP)

	resp, err := client.Do(req)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeConnection, "playlist request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		code := common.ErrCodeSegment
		if !common.RetryableStatus(resp.StatusCode) {
			code = common.ErrCodeResolve
		}
		return nil, common.NewStreamError(common.StreamTypeHLS, url, code,
			fmt.Sprintf("playlist request returned HTTP %d", resp.StatusCode), nil)
	}

	body := io.LimitReader(resp.Body, 10<<20)
	playlist, err := NewParser().Parse(body, url)
	if err != nil {
		return nil, err
	}
	return playlist, nil
}

func cancelledError(url string, cause error) error {
	return common.NewStreamError(common.StreamTypeHLS, url,
		common.ErrCodeCancelled, "stream cancelled", cause)
}

package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/buffer"
	"github.com/streamkit/segmented/stream/common"
)

// fetchResult carries one downloaded segment from a fetcher to the
// committer. data is already decrypted, with the initialization section
// prepended when it changed.
type fetchResult struct {
	job  segmentJob
	data []byte
	err  error
}

// segmentWriter downloads queued segments with up to SegmentThreads
// parallel fetchers and commits their bytes to the ring buffer strictly
// in playlist order
type segmentWriter struct {
	client *http.Client
	config *Config
	ring   *buffer.RingBuffer
	gate   *pauseGate
	fail   func(error)
	stats  *streamStats
	keys   *keyCache
	isVOD  bool

	sem *semaphore.Weighted

	mapMu     sync.Mutex
	mapURI    string
	mapBytes  []byte
	filtering bool
}

func newSegmentWriter(client *http.Client, config *Config, ring *buffer.RingBuffer, gate *pauseGate, fail func(error), stats *streamStats, isVOD bool) *segmentWriter {
	return &segmentWriter{
		client: client,
		config: config,
		ring:   ring,
		gate:   gate,
		fail:   fail,
		stats:  stats,
		keys:   newKeyCache(client, config.HTTP),
		isVOD:  isVOD,
		sem:    semaphore.NewWeighted(int64(config.SegmentThreads)),
	}
}

// run consumes jobs until the channel closes or the context is
// cancelled. On normal completion it closes the ring buffer so the
// reader drains the remaining bytes and then sees end of stream.
func (w *segmentWriter) run(ctx context.Context, jobs <-chan segmentJob) {
	defer w.gate.Close()
	defer w.ring.Close()

	threads := int64(w.config.SegmentThreads)
	// Counting the slot the committer holds, at most SegmentThreads
	// fetched segments can be awaiting commit at any time
	slots := make(chan chan fetchResult, w.config.SegmentThreads-1)

	go w.dispatch(ctx, jobs, slots, threads)

	var lastMap *SegmentMap
	for slot := range slots {
		var result fetchResult
		select {
		case result = <-slot:
		case <-ctx.Done():
			return
		}

		if result.err != nil {
			if !w.handleSegmentError(ctx, result) {
				return
			}
			continue
		}

		segment := &result.job.segment
		if w.config.Filter != nil && w.config.Filter(segment) {
			w.stats.addFiltered()
			if !w.filtering {
				w.filtering = true
				w.gate.Pause()
				logging.Info("filtering out segments and pausing stream output", logging.Fields{
					"component": "hls_writer",
					"sequence":  segment.Sequence,
				})
			}
			continue
		}
		if w.filtering {
			w.filtering = false
			w.gate.Resume()
			logging.Info("resuming stream output", logging.Fields{
				"component": "hls_writer",
				"sequence":  segment.Sequence,
			})
		}

		// A filtered run can hide a map change; re-check at commit time
		if segment.Map != nil && !segment.Map.Equal(lastMap) {
			prefix, err := w.fetchMap(ctx, segment)
			if err != nil {
				result.err = err
				if !w.handleSegmentError(ctx, result) {
					return
				}
				continue
			}
			combined := make([]byte, 0, len(prefix)+len(result.data))
			combined = append(combined, prefix...)
			result.data = append(combined, result.data...)
		}
		lastMap = segment.Map

		w.stats.addSegment()
		accepted := w.ring.Write(result.data)
		w.stats.addBytes(int64(accepted))
		if accepted < len(result.data) {
			// Ring closed underneath us, consumer is gone
			return
		}

		logging.Debug("segment committed", logging.Fields{
			"component": "hls_writer",
			"sequence":  segment.Sequence,
			"bytes":     accepted,
		})
	}
}

// dispatch launches one fetcher per job, bounded by the semaphore, and
// queues completion slots in job order for the committer
func (w *segmentWriter) dispatch(ctx context.Context, jobs <-chan segmentJob, slots chan chan fetchResult, threads int64) {
	defer close(slots)

	for job := range jobs {
		if job.flush {
			// Drain in-flight fetches before crossing a discontinuity
			if w.sem.Acquire(ctx, threads) != nil {
				return
			}
			w.sem.Release(threads)
		}

		if w.sem.Acquire(ctx, 1) != nil {
			return
		}

		slot := make(chan fetchResult, 1)
		select {
		case slots <- slot:
		case <-ctx.Done():
			w.sem.Release(1)
			return
		}

		go func(job segmentJob) {
			defer w.sem.Release(1)
			data, err := w.fetchSegment(ctx, &job.segment)
			slot <- fetchResult{job: job, data: data, err: err}
		}(job)
	}
}

// handleSegmentError decides whether the pipeline survives a failed
// segment. Live streams skip it; VOD, DRM and cancellation stop the
// stream. Returns false when the writer must stop.
func (w *segmentWriter) handleSegmentError(ctx context.Context, result fetchResult) bool {
	if ctx.Err() != nil || common.IsCancelled(result.err) {
		return false
	}
	if w.isVOD || common.IsDRMError(result.err) {
		w.fail(result.err)
		return false
	}
	logging.Warn("skipping failed segment", logging.Fields{
		"component": "hls_writer",
		"sequence":  result.job.segment.Sequence,
		"error":     result.err.Error(),
	})
	return true
}

// fetchSegment downloads one segment and decrypts it when keyed
func (w *segmentWriter) fetchSegment(ctx context.Context, segment *M3U8Segment) ([]byte, error) {
	if segment.Key.Encrypted() && segment.Key.Method != KeyMethodAES128 {
		return nil, common.NewStreamError(common.StreamTypeHLS, segment.URI,
			common.ErrCodeDRM,
			fmt.Sprintf("unsupported encryption method %q", segment.Key.Method), nil)
	}

	data, err := w.download(ctx, segment.URI, segment.ByteRange)
	if err != nil {
		return nil, err
	}

	if segment.Key.Encrypted() {
		data, err = w.decrypt(ctx, data, segment, segment.URI)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// fetchMap downloads the segment's initialization section, decrypting it
// under the segment's key when one is active
func (w *segmentWriter) fetchMap(ctx context.Context, segment *M3U8Segment) ([]byte, error) {
	cacheKey := segment.Map.URI
	if segment.Map.ByteRange != nil {
		cacheKey += "#" + segment.Map.ByteRange.String()
	}
	w.mapMu.Lock()
	if w.mapURI == cacheKey {
		cached := w.mapBytes
		w.mapMu.Unlock()
		return cached, nil
	}
	w.mapMu.Unlock()

	data, err := w.download(ctx, segment.Map.URI, segment.Map.ByteRange)
	if err != nil {
		return nil, err
	}
	if segment.Key.Encrypted() {
		data, err = w.decrypt(ctx, data, segment, segment.Map.URI)
		if err != nil {
			return nil, err
		}
	}

	w.mapMu.Lock()
	w.mapURI = cacheKey
	w.mapBytes = data
	w.mapMu.Unlock()

	logging.Debug("initialization section fetched", logging.Fields{
		"component": "hls_writer",
		"uri":       segment.Map.URI,
		"bytes":     len(data),
	})
	return data, nil
}

func (w *segmentWriter) decrypt(ctx context.Context, data []byte, segment *M3U8Segment, url string) ([]byte, error) {
	key, err := w.keys.Get(ctx, segment.Key.URI)
	if err != nil {
		return nil, err
	}
	iv := segment.Key.IV
	if len(iv) == 0 {
		iv = sequenceIV(segment.Sequence)
	}
	return decryptSegment(data, key, iv, url)
}

// download fetches a URL, optionally range-limited, retrying transient
// failures with exponential backoff
func (w *segmentWriter) download(ctx context.Context, url string, byteRange *ByteRange) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < w.config.SegmentAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(common.Backoff(attempt, 500*time.Millisecond, 5*time.Second)):
			case <-ctx.Done():
				return nil, cancelledError(url, ctx.Err())
			}
		}

		data, retryable, err := w.downloadOnce(ctx, url, byteRange)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, cancelledError(url, ctx.Err())
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		logging.Debug("segment download failed, retrying", logging.Fields{
			"component": "hls_writer",
			"url":       url,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})
	}
	return nil, common.NewStreamError(common.StreamTypeHLS, url,
		common.ErrCodeSegment, "segment download attempts exhausted", lastErr)
}

func (w *segmentWriter) downloadOnce(ctx context.Context, url string, byteRange *ByteRange) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.config.SegmentTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeSegment, "invalid segment URL", err)
	}
	common.ApplyRequestOptions(req, w.config.HTTP)
	if byteRange != nil {
		req.Header.Set("Range", byteRange.HeaderValue())
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, true, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeConnection, "segment request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, common.RetryableStatus(resp.StatusCode),
			common.NewStreamError(common.StreamTypeHLS, url, common.ErrCodeSegment,
				fmt.Sprintf("segment request returned HTTP %d", resp.StatusCode), nil)
	}

	w.stats.setConnected()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, common.NewStreamError(common.StreamTypeHLS, url,
			common.ErrCodeConnection, "reading segment failed", err)
	}
	return data, false, nil
}

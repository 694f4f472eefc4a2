package hls

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/buffer"
	"github.com/streamkit/segmented/stream/common"
)

// closeGrace bounds how long Close waits for the pipeline goroutines
const closeGrace = 10 * time.Second

// Reader is the consumer end of an open HLS stream. It drains the ring
// buffer the worker and writer fill, blocks through filtered gaps, and
// reports the pipeline's fatal error in place of a clean end of stream.
type Reader struct {
	url    string
	config *Config
	ring   *buffer.RingBuffer
	gate   *pauseGate
	stats  *streamStats
	cancel context.CancelFunc
	done   chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// fail records the pipeline's first fatal error and tears the stream
// down so the reader observes it
func (r *Reader) fail(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()

	if streamErr, ok := err.(*common.StreamError); ok {
		streamErr.Log()
	} else {
		logging.Error(err, "stream pipeline failed", logging.Fields{
			"component": "hls_reader",
			"url":       r.url,
		})
	}

	r.cancel()
	r.ring.Close()
	r.gate.Close()
}

func (r *Reader) pipelineErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Read implements io.Reader. It blocks until data arrives, the stream
// ends, or no data has arrived within the stream timeout. While the
// writer is filtering segments, Read blocks without a timeout instead of
// reporting a stall.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		// Drain bytes committed before a filter pause without blocking
		data, result := r.ring.ReadNoWait(len(p))
		if result == buffer.ReadData {
			return copy(p, data), nil
		}

		if r.gate.Paused() {
			r.gate.Wait()
			continue
		}

		data, result = r.ring.Read(len(p), true, r.config.StreamTimeout)
		switch result {
		case buffer.ReadData:
			return copy(p, data), nil
		case buffer.ReadEOF:
			if err := r.pipelineErr(); err != nil && !common.IsCancelled(err) {
				return 0, err
			}
			return 0, io.EOF
		default:
			if r.gate.Paused() {
				// The writer started filtering while we were blocked
				continue
			}
			// A stalled stream is dead: stop the worker and writer
			// instead of letting them keep fetching
			err := common.NewStreamError(common.StreamTypeHLS, r.url,
				common.ErrCodeStalled,
				"no data received within the stream timeout", nil)
			r.fail(err)
			return 0, err
		}
	}
}

// Close stops the pipeline and releases the buffer. Safe to call more
// than once; later calls return the first call's result.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		r.ring.Close()
		r.gate.Close()

		// Discard whatever the writer committed but nobody read, so
		// reads after close report EOF immediately
		for {
			data, result := r.ring.ReadNoWait(64 * 1024)
			if result != buffer.ReadData || len(data) == 0 {
				break
			}
		}

		select {
		case <-r.done:
		case <-time.After(closeGrace):
			logging.Warn("pipeline did not stop within the close grace period", logging.Fields{
				"component": "hls_reader",
				"url":       r.url,
			})
		}

		stats := r.stats.Snapshot()
		logging.Info("stream closed", logging.Fields{
			"component":         "hls_reader",
			"url":               r.url,
			"bytes_received":    stats.BytesReceived,
			"segments_received": stats.SegmentsReceived,
			"segments_filtered": stats.SegmentsFiltered,
			"playlist_reloads":  stats.PlaylistReloads,
		})
	})
	return nil
}

// Stats returns a snapshot of the stream counters
func (r *Reader) Stats() common.StreamStats {
	return r.stats.Snapshot()
}

// openPipeline wires the worker, writer and reader around a fetched
// media playlist and starts the goroutines
func openPipeline(ctx context.Context, client *http.Client, config *Config, url string, initial *M3U8Playlist) *Reader {
	pipelineCtx, cancel := context.WithCancel(ctx)

	reader := &Reader{
		url:    url,
		config: config,
		ring:   buffer.NewRingBuffer(config.RingBufferBytes),
		gate:   newPauseGate(),
		stats:  newStreamStats(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	jobs := make(chan segmentJob, config.LiveEdge+2)
	worker := newWorker(client, config, url, jobs, reader.fail, reader.stats)
	worker.initial = initial
	writer := newSegmentWriter(client, config, reader.ring, reader.gate,
		reader.fail, reader.stats, initial.IsVOD())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.run(pipelineCtx)
	}()
	go func() {
		defer wg.Done()
		writer.run(pipelineCtx, jobs)
	}()
	go func() {
		wg.Wait()
		close(reader.done)
	}()

	return reader
}

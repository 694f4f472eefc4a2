package hls

import "sync"

// pauseGate coordinates the writer's filter state with the reader. While
// paused the reader blocks instead of reporting end of stream, so a
// filtered ad break looks like a stall-free gap to the consumer.
type pauseGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *pauseGate) Pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *pauseGate) Resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Close releases any blocked waiters permanently
func (g *pauseGate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *pauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused && !g.closed
}

// Wait blocks while the gate is paused. Returns immediately once the
// gate is resumed or closed.
func (g *pauseGate) Wait() {
	g.mu.Lock()
	for g.paused && !g.closed {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

package coretest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/Roomscribe/internal/core"
)

// MemConn is an in-memory SignalConnection with a bounded queue.
// Tests use it in place of a websocket.
type MemConn struct {
	ch chan core.Frame

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ core.SignalConnection = (*MemConn)(nil)

func NewMemConn(size int) *MemConn {
	return &MemConn{ch: make(chan core.Frame, size), done: make(chan struct{})}
}

func (c *MemConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.ch <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *MemConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *MemConn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Done is closed when the connection is closed.
func (c *MemConn) Done() <-chan struct{} { return c.done }

// Frames returns the channel of queued frames.
func (c *MemConn) Frames() <-chan core.Frame { return c.ch }

// Drain returns every frame queued right now.
func (c *MemConn) Drain() []core.Frame {
	var out []core.Frame
	for {
		select {
		case f := <-c.ch:
			out = append(out, f)
		default:
			return out
		}
	}
}

// Next waits for the next frame of the given event type and decodes it into v.
func (c *MemConn) Next(eventType string, v any, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-c.ch:
			var env struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(f, &env) != nil || env.Type != eventType {
				continue
			}
			return json.Unmarshal(f, v) == nil
		case <-deadline:
			return false
		}
	}
}

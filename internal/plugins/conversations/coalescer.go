package conversations

import (
	"sync"
	"time"
)

const (
	defaultCoalesceWindow = 50 * time.Millisecond
	maxCoalesceDelay      = 500 * time.Millisecond
)

// ChangeCoalescer batches rapid list-cache notifications into a single
// ListChangedMsg. A burst is flushed after a quiet window, or after
// maxCoalesceDelay when changes keep arriving.
type ChangeCoalescer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	first   time.Time
	pending int
	closed  bool
	out     chan<- ListChangedMsg
	now     func() time.Time
}

// NewChangeCoalescer creates a coalescer that sends on out.
func NewChangeCoalescer(window time.Duration, out chan<- ListChangedMsg) *ChangeCoalescer {
	if window <= 0 {
		window = defaultCoalesceWindow
	}
	return &ChangeCoalescer{window: window, out: out, now: time.Now}
}

// Add records one change.
func (c *ChangeCoalescer) Add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	now := c.now()
	if c.pending == 0 {
		c.first = now
	}
	c.pending++

	wait := c.window
	if remaining := maxCoalesceDelay - now.Sub(c.first); remaining < wait {
		wait = max(remaining, 0)
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(wait, c.flush)
}

func (c *ChangeCoalescer) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending == 0 {
		return
	}

	msg := ListChangedMsg{Changes: c.pending}
	c.pending = 0
	c.timer = nil

	// A full channel already holds a refresh that will read the latest list.
	select {
	case c.out <- msg:
	default:
	}
}

// Stop cancels any pending flush.
func (c *ChangeCoalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ListChangedMsg says the conversation list changed Changes times since the
// last refresh.
type ListChangedMsg struct {
	Changes int
}

package controller

import (
	"context"
	"errors"
	"time"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/metrics"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 15 * time.Second
	defaultFeedGrace  = 5 * time.Second
)

// EventSource opens the streaming feed. The returned channel closes when the
// feed ends.
type EventSource interface {
	Events(ctx context.Context) (<-chan conversation.Event, error)
}

// Follow keeps the feed open until ctx is done, reconnecting with a capped
// exponential backoff. onState, when non-nil, is told whether the feed is
// connected. Follow is the single goroutine calling Handle.
//
// An outstanding turn survives a drop if the feed is back within the grace
// window; otherwise it is abandoned.
func (c *Controller) Follow(ctx context.Context, src EventSource, onState func(connected bool)) error {
	delay := minReconnectDelay
	var lostAt time.Time
	for {
		events, err := src.Events(ctx)
		if err == nil {
			lostAt = time.Time{}
			if onState != nil {
				onState(true)
			}
			delay = minReconnectDelay
			err = c.Run(ctx, events)
			if onState != nil {
				onState(false)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("event feed lost", "err", err, "retry_in", delay)
		}

		wait := delay
		if c.Busy() {
			if lostAt.IsZero() {
				lostAt = time.Now()
			}
			// a turn waiting on a dead feed would never end
			left := c.feedGrace - time.Since(lostAt)
			if left <= 0 {
				c.abandonTurn()
				lostAt = time.Time{}
			} else if left < wait {
				wait = left
			}
		} else {
			lostAt = time.Time{}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// abandonTurn ends the outstanding turn after the feed stayed down.
func (c *Controller) abandonTurn() {
	c.mu.Lock()
	t := c.turn
	c.mu.Unlock()
	if !c.claim(t) {
		return
	}

	c.store.CancelTurn()
	c.metrics.RecordTurn(metrics.OutcomeFailed)
	c.notify.Error("Lost connection to the server. Please try again.")
}

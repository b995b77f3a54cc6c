package events

import (
	"sync"
	"time"
)

// Core is a process-wide, single-reader event queue. Publishers (brokers,
// runners) append events as they occur; the one caller inside wait() drains
// them. Core never drops an event: a full drain always returns everything
// queued since the previous drain.
type Core struct {
	mu      sync.Mutex
	queue   []Event
	wake    chan struct{}
	wokeSet bool
}

// NewCore returns an empty Core.
func NewCore() *Core {
	return &Core{wake: make(chan struct{}, 1)}
}

// Publish appends ev to the queue and wakes a blocked Drain, if any.
func (c *Core) Publish(ev Event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Drain returns and clears every event queued since the last Drain. If the
// queue is empty, Drain blocks until an event arrives, the horizon elapses,
// or ctx-like cancellation is signaled via the done channel. horizon bounds
// how long Drain sleeps before re-checking the queue on its own, so a missed
// wake (a Publish that raced the select below) is never lost for more than
// one horizon.
func (c *Core) Drain(horizon time.Duration, done <-chan struct{}) []Event {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			out := c.queue
			c.queue = nil
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()

		timer := time.NewTimer(horizon)
		select {
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
		case <-done:
			timer.Stop()
			return nil
		}
	}
}

// Len reports the number of queued, undrained events. Used by tests and by
// callers that want to peek without consuming.
func (c *Core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

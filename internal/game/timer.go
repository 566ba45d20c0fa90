package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown drives one timed phase: it ticks once per second with the
// remaining time and fires onExpire at most once when the time is spent.
// stop is idempotent and safe to race against expiry; a countdown that loses
// that race simply never delivers another callback. Callers are expected to
// re-check game state under the game lock inside every callback, so a stale
// fire that slips through before stop is observed is still harmless.
type countdown struct {
	clock    clockwork.Clock
	seconds  int
	onTick   func(remaining int)
	onExpire func()

	stopOnce sync.Once
	stopCh   chan struct{}
}

// newCountdown starts a countdown of the given whole seconds. A non-positive
// duration fires onExpire asynchronously right away. onTick and onExpire may
// be nil.
func newCountdown(clock clockwork.Clock, seconds int, onTick func(remaining int), onExpire func()) *countdown {
	c := &countdown{
		clock:    clock,
		seconds:  seconds,
		onTick:   onTick,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *countdown) run() {
	if c.seconds <= 0 {
		select {
		case <-c.stopCh:
		default:
			if c.onExpire != nil {
				c.onExpire()
			}
		}
		return
	}

	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := c.seconds
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.Chan():
			remaining--
			if remaining <= 0 {
				// Final check so a stop issued during the last tick wins.
				select {
				case <-c.stopCh:
				default:
					if c.onExpire != nil {
						c.onExpire()
					}
				}
				return
			}
			if c.onTick != nil {
				c.onTick(remaining)
			}
		}
	}
}

// stop cancels the countdown. Safe to call any number of times, from any
// goroutine, including concurrently with expiry.
func (c *countdown) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

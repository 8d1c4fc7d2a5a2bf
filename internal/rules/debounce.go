package rules

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of candidate-rule sets into periodic fires,
// using a time.AfterFunc-reset timer. It fires on both edges with a
// maxWait ceiling: the first arrival in a quiet period fires immediately
// (leading edge), further arrivals extend a trailing timer capped at
// maxWait from the window's start — without that cap, a steady trickle of
// deltas arriving faster than interval would defer evaluation forever.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	maxWait  time.Duration
	fire     func(candidates map[string]struct{})

	pending     map[string]struct{}
	timer       *time.Timer
	windowStart time.Time
	active      bool
}

// NewDebouncer creates a debouncer that calls fire with the union of all
// names accumulated since the previous fire, at most once per interval
// (reset on each new arrival) and at least once per maxWait.
func NewDebouncer(interval, maxWait time.Duration, fire func(candidates map[string]struct{})) *Debouncer {
	return &Debouncer{
		interval: interval,
		maxWait:  maxWait,
		fire:     fire,
		pending:  make(map[string]struct{}),
	}
}

// Add merges names into the current window. The first arrival after a
// quiet period fires immediately; subsequent arrivals reset the trailing
// timer, bounded by maxWait measured from the window's first arrival.
func (d *Debouncer) Add(names map[string]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for n := range names {
		d.pending[n] = struct{}{}
	}

	if !d.active {
		d.active = true
		d.windowStart = time.Now()
		d.fireLocked()
	}
	d.scheduleTrailingLocked()
}

func (d *Debouncer) scheduleTrailingLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	wait := d.interval
	if elapsed := time.Since(d.windowStart); elapsed+wait > d.maxWait {
		if remaining := d.maxWait - elapsed; remaining > 0 {
			wait = remaining
		} else {
			wait = 0
		}
	}
	d.timer = time.AfterFunc(wait, d.timerFired)
}

func (d *Debouncer) timerFired() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fireLocked()
	d.active = false
	d.timer = nil
}

// fireLocked must be called with d.mu held. It invokes fire with the
// pending set (if non-empty) and resets it.
func (d *Debouncer) fireLocked() {
	if len(d.pending) == 0 {
		return
	}
	batch := d.pending
	d.pending = make(map[string]struct{})
	d.fire(batch)
}

// Stop cancels any pending trailing timer, releasing its resources.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

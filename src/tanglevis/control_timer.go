package tanglevis

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the engine's periodic work (milestone staleness
// sweeps) from its own goroutine, signalling the run loop through tickCh so
// that the sweep itself is a discrete step of the single-writer loop.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{} //sends a signal to listening process
	shutdownCh   chan struct{} //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewPeriodicControlTimer returns a ControlTimer that fires at a fixed
// period.
func NewPeriodicControlTimer() *ControlTimer {
	periodicTimeout := func(period time.Duration) <-chan time.Time {
		if period == 0 {
			return nil
		}
		return time.After(period)
	}
	return NewControlTimer(periodicTimeout)
}

// Run loops until Shutdown, rearming the timer after every tick. A tick
// that nobody is listening for is dropped rather than held, so a slow
// consumer cannot back the timer up.
func (c *ControlTimer) Run(period time.Duration) {
	timer := c.timerFactory(period)
	for {
		select {
		case <-timer:
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
			timer = c.timerFactory(period)
		case <-c.shutdownCh:
			return
		}
	}
}

// Shutdown ...
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}

package dispatch

import "time"

// DefaultTickInterval is how often the drain step runs in either mode.
// Interactive assistant traffic tolerates a 50ms pickup latency easily.
const DefaultTickInterval = 50 * time.Millisecond

// Driver abstracts whatever invokes Drain periodically. In cooperative
// mode the embedding application supplies a Driver bound to its GUI
// toolkit's recurring-timer primitive, so Drain always runs on the GUI
// thread. In headless mode the Poller below is used.
//
// Whether a GUI event loop exists is an explicit input decided once
// before the bridge starts; it is never re-derived while running.
type Driver interface {
	// Start begins invoking tick roughly every interval. Start must
	// guarantee single-flight: no two tick invocations may overlap.
	Start(tick func(), interval time.Duration)

	// Stop ceases invocations and blocks until any in-progress tick
	// returns, within the driver's own join bound.
	Stop()
}

// Poller is the headless Driver: a dedicated goroutine polling the queue
// on a fixed tick. Single-flight holds because the one goroutine is the
// only caller of tick.
type Poller struct {
	stop chan struct{}
	done chan struct{}
}

// NewPoller creates an unstarted Poller.
func NewPoller() *Poller {
	return &Poller{}
}

// Start spawns the polling goroutine.
func (p *Poller) Start(tick func(), interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tick()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop signals the goroutine and waits for it to exit, bounded so a
// hung user execution cannot wedge shutdown. The goroutine is a
// background worker, so an expired join is not fatal.
func (p *Poller) Stop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
	p.stop = nil
}

// SelectDriver picks the drain driver. A nil guiDriver means no GUI
// event loop is available, so the headless Poller is used. The second
// return reports headless mode for status reporting.
func SelectDriver(guiDriver Driver) (Driver, bool) {
	if guiDriver != nil {
		return guiDriver, false
	}
	return NewPoller(), true
}

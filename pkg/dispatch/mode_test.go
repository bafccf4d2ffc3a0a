package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGUIDriver simulates a host GUI timer: it invokes the tick from a
// goroutine it owns, like a toolkit timer firing on the event loop.
type fakeGUIDriver struct {
	mu      sync.Mutex
	started bool
	stopped bool
	poller  *Poller
}

func (f *fakeGUIDriver) Start(tick func(), interval time.Duration) {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.poller = NewPoller()
	f.poller.Start(tick, interval)
}

func (f *fakeGUIDriver) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.poller.Stop()
}

func TestSelectDriverHeadless(t *testing.T) {
	driver, headless := SelectDriver(nil)
	assert.True(t, headless)
	_, ok := driver.(*Poller)
	assert.True(t, ok, "headless mode must use the Poller")
}

func TestSelectDriverCooperative(t *testing.T) {
	gui := &fakeGUIDriver{}
	driver, headless := SelectDriver(gui)
	assert.False(t, headless)
	if driver != Driver(gui) {
		t.Error("cooperative mode must use the supplied driver")
	}
}

func TestPollerDrivesDrain(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(runner)

	p := NewPoller()
	p.Start(d.Drain, 5*time.Millisecond)
	defer p.Stop()

	res := d.Submit("hello", time.Second)
	require.True(t, res.Success)
	assert.Equal(t, []string{"hello"}, runner.executed())
}

func TestPollerStopIdempotent(t *testing.T) {
	p := NewPoller()
	p.Start(func() {}, 5*time.Millisecond)
	p.Stop()
	p.Stop() // second stop is a no-op
}

func TestPollerStopUnstarted(t *testing.T) {
	p := NewPoller()
	p.Stop() // must not panic
}

func TestCooperativeDriverDrivesDrain(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(runner)

	gui := &fakeGUIDriver{}
	driver, headless := SelectDriver(gui)
	require.False(t, headless)

	driver.Start(d.Drain, 5*time.Millisecond)
	defer driver.Stop()

	res := d.Submit("gui_side", time.Second)
	require.True(t, res.Success)

	gui.mu.Lock()
	defer gui.mu.Unlock()
	assert.True(t, gui.started)
}

// Package dispatch serializes all code-execution side effects onto a
// single goroutine, regardless of how many concurrent RPC callers are
// waiting. Frontends enqueue requests from their own goroutines; a
// periodically invoked drain step pops and executes them in strict FIFO
// order on whichever goroutine drives it (the host GUI timer in
// cooperative mode, a dedicated poller in headless mode).
//
// The dispatcher provides ordering and thread affinity, not isolation or
// preemption: a request whose code hangs forever blocks all subsequent
// queued requests. That is a deliberate property of the design, matched
// by the caller-side timeout semantics in Request.Wait.
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/cadbridge/pkg/debug"
	"github.com/rhuss/cadbridge/pkg/observability"
)

// Runner executes a code snippet synchronously and reports the outcome.
// Implementations own the interpreter namespace; they are only ever
// invoked from the single drain goroutine, so they need no internal
// locking against themselves.
type Runner interface {
	Run(code string) Result
}

// Observer is notified after each drained request, success or failure
// both. Used to wire the execution history store without coupling the
// dispatcher to storage.
type Observer interface {
	RequestExecuted(req *Request, res Result)
}

// Dispatcher is the single pending-work queue plus its drain step.
type Dispatcher struct {
	runner   Runner
	observer Observer

	mu    sync.Mutex
	queue []*Request

	requestCount atomic.Int64
	lastRequest  atomic.Int64 // unix nanos of the last executed request, 0 = never
}

// NewDispatcher creates a dispatcher executing code via runner.
func NewDispatcher(runner Runner) *Dispatcher {
	return &Dispatcher{runner: runner}
}

// SetObserver installs the post-execution observer. Must be called
// before the drain loop starts.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

// Enqueue pushes a request onto the FIFO. Never blocks and never waits
// for execution; safe for concurrent use from any goroutine.
func (d *Dispatcher) Enqueue(req *Request) {
	req.enqueuedAt = time.Now()
	d.mu.Lock()
	d.queue = append(d.queue, req)
	depth := len(d.queue)
	d.mu.Unlock()

	observability.QueueDepth.Set(float64(depth))
	debug.Log("dispatch", "request enqueued", "id", req.ID, "depth", depth)
}

// Submit enqueues code and blocks until completion or timeout. This is
// the frontends' entry point; it runs on the calling goroutine, so a
// slow execution never stalls the accept loops.
func (d *Dispatcher) Submit(code string, timeout time.Duration) Result {
	req := NewRequest(code, timeout)
	d.Enqueue(req)
	return req.Wait()
}

// Do enqueues fn for execution on the drain goroutine and blocks until
// completion or timeout. Used for work that must share the queue's
// thread affinity, such as view capture.
func (d *Dispatcher) Do(fn func() Result, timeout time.Duration) Result {
	req := NewFuncRequest(fn, timeout)
	d.Enqueue(req)
	return req.Wait()
}

// Drain executes every request queued at the moment of the call, each
// synchronously, in FIFO order. Requests enqueued while a drain is in
// progress are picked up by the next invocation. Exactly one goroutine
// invokes Drain at a time; the driver wiring guarantees single-flight.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	n := len(d.queue)
	d.mu.Unlock()

	for i := 0; i < n; i++ {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		req := d.queue[0]
		d.queue = d.queue[1:]
		depth := len(d.queue)
		d.mu.Unlock()

		observability.QueueDepth.Set(float64(depth))
		d.execute(req)
	}
}

// execute runs one request and completes it. Bookkeeping failures are
// logged and must not terminate the drain loop or lose other requests.
func (d *Dispatcher) execute(req *Request) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch bookkeeping failure", "id", req.ID, "panic", r)
			req.complete(Failure("InternalError", fmt.Sprintf("dispatch failure: %v", r)))
		}
	}()

	var res Result
	if req.run != nil {
		res = runRecovered(req.run)
	} else {
		res = d.runner.Run(req.Code)
	}

	if !res.Success && res.ErrorType == "" {
		res.ErrorType = "Error"
	}
	if !res.Success && res.ErrorMessage == "" {
		res.ErrorMessage = res.ErrorType
	}
	if res.Duration < 0 {
		res.Duration = 0
	}

	d.requestCount.Add(1)
	d.lastRequest.Store(time.Now().UnixNano())
	observability.ExecutionDuration.Observe(res.Duration.Seconds())

	if d.observer != nil {
		d.observer.RequestExecuted(req, res)
	}

	debug.Log("dispatch", "request executed",
		"id", req.ID, "success", res.Success, "duration", res.Duration,
		"queued_for", time.Since(req.enqueuedAt))

	req.complete(res)
}

// runRecovered invokes a host function, converting a panic into a
// structured failure so one misbehaving capture cannot kill the loop.
func runRecovered(fn func() Result) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Failure("PanicError", fmt.Sprintf("%v", r))
			res.Duration = time.Since(start)
		}
	}()
	res = fn()
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res
}

// QueueDepth returns the number of requests currently waiting.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// RequestCount returns the number of requests executed so far. Success
// and failure both count; monotonically non-decreasing.
func (d *Dispatcher) RequestCount() int64 {
	return d.requestCount.Load()
}

// LastRequestTime returns the completion time of the most recently
// executed request, or the zero time if none has executed yet.
func (d *Dispatcher) LastRequestTime() time.Time {
	ns := d.lastRequest.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

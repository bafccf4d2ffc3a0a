package dispatch

import (
	"fmt"
	"time"

	"github.com/rs/xid"
)

// DefaultTimeout bounds how long a caller waits for a queued request
// before a TimeoutError result is synthesized.
const DefaultTimeout = 30 * time.Second

// Request is one unit of work handed from a frontend thread to the drain
// loop. Exactly one goroutine (the drain loop) completes it, and exactly
// one goroutine (the enqueuer) waits on it.
type Request struct {
	// ID is an opaque correlation id used only for logging.
	ID string

	// Code is the source text to execute. Empty code is valid and
	// executes as a no-op.
	Code string

	// Timeout bounds the enqueuer's wait, not the execution itself.
	Timeout time.Duration

	// run, when set, is executed on the drain goroutine instead of
	// routing Code through the runner. Used for host-thread work such
	// as view capture that must share the queue's thread affinity.
	run func() Result

	done       chan Result
	enqueuedAt time.Time
}

// NewRequest creates a code-execution request. A non-positive timeout
// falls back to DefaultTimeout.
func NewRequest(code string, timeout time.Duration) *Request {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Request{
		ID:      xid.New().String(),
		Code:    code,
		Timeout: timeout,
		done:    make(chan Result, 1),
	}
}

// NewFuncRequest creates a request that runs fn on the drain goroutine.
func NewFuncRequest(fn func() Result, timeout time.Duration) *Request {
	r := NewRequest("", timeout)
	r.run = fn
	return r
}

// complete stores the result and signals the waiter. The done channel is
// buffered so a completion after the waiter has given up is dropped
// rather than blocking the drain loop.
func (r *Request) complete(res Result) {
	select {
	case r.done <- res:
	default:
	}
}

// Wait blocks until the request completes or its timeout elapses. On
// timeout a TimeoutError result is synthesized; the request itself stays
// in the queue and will still execute later, silently, with its result
// discarded. Timeouts affect what is reported, never whether execution
// happens.
func (r *Request) Wait() Result {
	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()

	select {
	case res := <-r.done:
		return res
	case <-timer.C:
		return Failure("TimeoutError",
			fmt.Sprintf("execution did not complete within %s (the request remains queued and will still run)", r.Timeout))
	}
}

// Package bridge ties the pieces together: the dispatch queue, its drive
// mode, and the two network frontends, behind a single facade owning
// lifecycle and status. The embedding application constructs one Bridge,
// starts it, and passes it by reference to whatever needs status — there
// is no process-wide "current bridge" global.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/cadbridge/pkg/debug"
	"github.com/rhuss/cadbridge/pkg/dispatch"
	"github.com/rhuss/cadbridge/pkg/rpc/socketrpc"
	"github.com/rhuss/cadbridge/pkg/rpc/xmlrpc"
)

// InstanceIDPrefix is the machine-parseable startup line prefix. External
// harnesses capture the instance identity by scanning stdout for it.
const InstanceIDPrefix = "FREECAD_MCP_BRIDGE_INSTANCE_ID="

// Lifecycle states. Transitions only move forward through one cycle:
// stopped -> starting -> running -> stopping -> stopped.
const (
	stateStopped int32 = iota
	stateStarting
	stateRunning
	stateStopping
)

// ViewProvider renders the host application's active 3D view. Registered
// by the embedding application; the bridge itself has no rendering
// capability. Capture runs on the drain goroutine, so implementations may
// touch GUI state freely. An unrecognized viewType must leave the camera
// unchanged and render the current orientation.
type ViewProvider interface {
	Capture(width, height int, viewType string) ([]byte, error)
}

// ViewPresets are the camera orientations get_view recognizes. Names
// outside this list are passed to the provider unchanged.
var ViewPresets = []string{
	"FitAll", "Isometric", "Front", "Back", "Top", "Bottom", "Left", "Right",
}

// Options configures a Bridge. Host/port settings are immutable for the
// life of one instance; changing them means stop, reconstruct, start.
type Options struct {
	SocketHost string
	SocketPort int

	XMLRPCHost    string
	XMLRPCPort    int
	XMLRPCEnabled bool

	// MetricsPath, when non-empty, serves Prometheus metrics on the
	// XML-RPC HTTP mux.
	MetricsPath string

	// Driver invokes the queue drain. Nil means no GUI event loop is
	// available and the headless poller is used. Whether a GUI exists is
	// decided here, once, by the embedding application; the bridge never
	// re-derives it while running.
	Driver dispatch.Driver

	// TickInterval is the drain period. Zero means the default 50ms.
	TickInterval time.Duration

	// Runner executes submitted code. Required.
	Runner dispatch.Runner

	// Observer, when set, is notified after every executed request.
	// Used to wire the execution history store.
	Observer dispatch.Observer

	// Views renders get_view captures. Nil means get_view reports
	// "no active view".
	Views ViewProvider

	// DefaultTimeout bounds execute waits when the caller supplies none.
	DefaultTimeout time.Duration

	// Stdout receives the instance-id startup line. Defaults to
	// os.Stdout; tests substitute a buffer.
	Stdout io.Writer
}

// Bridge owns the dispatcher, its driver, and both frontends.
type Bridge struct {
	opts       Options
	instanceID string

	dispatcher *dispatch.Dispatcher
	driver     dispatch.Driver
	headless   bool

	socket *socketrpc.Server
	xml    *xmlrpc.Server

	state atomic.Int32

	mu       sync.Mutex
	socketUp bool
	xmlUp    bool
}

// New constructs a stopped Bridge. The instance id is fixed here and
// survives restarts of the same Bridge value.
func New(opts Options) *Bridge {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = dispatch.DefaultTimeout
	}

	b := &Bridge{
		opts:       opts,
		instanceID: uuid.NewString(),
		dispatcher: dispatch.NewDispatcher(opts.Runner),
	}
	if opts.Observer != nil {
		b.dispatcher.SetObserver(opts.Observer)
	}
	b.socket = socketrpc.NewServer(opts.SocketHost, opts.SocketPort, b)
	if opts.XMLRPCEnabled {
		b.xml = xmlrpc.NewServer(opts.XMLRPCHost, opts.XMLRPCPort, b, opts.MetricsPath)
	}
	return b
}

// InstanceID returns the fixed identifier for this bridge instance.
func (b *Bridge) InstanceID() string {
	return b.instanceID
}

// Running reports whether the facade is between a successful Start and
// the completion of Stop.
func (b *Bridge) Running() bool {
	return b.state.Load() == stateRunning
}

// Start wires the drive mode and brings up the frontends. Calling Start
// on a bridge that is not stopped is a no-op, not an error. A frontend
// whose port is taken logs a warning and stays down; the rest of the
// facade keeps operating.
func (b *Bridge) Start() {
	if !b.state.CompareAndSwap(stateStopped, stateStarting) {
		return
	}

	// The identity line goes to real stdout before any log output so
	// external harnesses can capture it unambiguously.
	fmt.Fprintf(b.opts.Stdout, "%s%s\n", InstanceIDPrefix, b.instanceID)

	b.driver, b.headless = dispatch.SelectDriver(b.opts.Driver)
	b.driver.Start(b.dispatcher.Drain, b.opts.TickInterval)

	b.mu.Lock()
	if err := b.socket.Start(); err != nil {
		slog.Warn("socket frontend unavailable", "error", err)
		b.socketUp = false
	} else {
		b.socketUp = true
	}
	if b.xml != nil {
		if err := b.xml.Start(); err != nil {
			slog.Warn("xmlrpc frontend unavailable", "error", err)
			b.xmlUp = false
		} else {
			b.xmlUp = true
		}
	}
	b.mu.Unlock()

	b.state.Store(stateRunning)
	slog.Info("bridge started",
		"instance_id", b.instanceID,
		"socket_port", b.socket.Port(),
		"xmlrpc_enabled", b.xml != nil,
		"headless", b.headless)
}

// Stop unwinds Start: flips the state first so loops observing it begin
// exiting, stops the drain driver, then closes both frontends. Calling
// Stop on a bridge that is not running is a no-op. Shutdown races are
// swallowed inside the frontends as part of normal teardown.
func (b *Bridge) Stop() {
	if !b.state.CompareAndSwap(stateRunning, stateStopping) {
		return
	}

	b.driver.Stop()

	b.mu.Lock()
	if b.socketUp {
		b.socket.Stop()
		b.socketUp = false
	}
	if b.xml != nil && b.xmlUp {
		b.xml.Stop()
		b.xmlUp = false
	}
	b.mu.Unlock()

	b.state.Store(stateStopped)
	slog.Info("bridge stopped", "instance_id", b.instanceID)
}

// RunForever is the headless entry point: Start, block until the context
// is cancelled, Stop.
func (b *Bridge) RunForever(ctx context.Context) {
	b.Start()
	<-ctx.Done()
	b.Stop()
}

// Submit enqueues code and blocks until completion or timeout. This is
// the Backend entry point shared by both frontends; it runs on the
// caller's goroutine. A non-positive timeout uses the configured default.
func (b *Bridge) Submit(code string, timeout time.Duration) dispatch.Result {
	if timeout <= 0 {
		timeout = b.opts.DefaultTimeout
	}
	return b.dispatcher.Submit(code, timeout)
}

// CaptureView renders the active view through the dispatch queue, so the
// provider runs with the same thread affinity as submitted code. Without
// a provider it reports a structured failure, never a fault.
func (b *Bridge) CaptureView(width, height int, viewType string) map[string]any {
	if b.opts.Views == nil {
		return map[string]any{"success": false, "error": "no active view"}
	}

	res := b.dispatcher.Do(func() dispatch.Result {
		start := time.Now()
		data, err := b.opts.Views.Capture(width, height, viewType)
		if err != nil {
			f := dispatch.Failure("ViewError", err.Error())
			f.Duration = time.Since(start)
			return f
		}
		return dispatch.Result{Success: true, Value: data, Duration: time.Since(start)}
	}, b.opts.DefaultTimeout)

	if !res.Success {
		debug.Log("bridge", "view capture failed",
			"error_type", res.ErrorType, "error", res.ErrorMessage)
		return map[string]any{"success": false, "error": res.ErrorMessage}
	}

	data, _ := res.Value.([]byte)
	return map[string]any{
		"success": true,
		"data":    data,
		"format":  "png",
		"width":   int64(width),
		"height":  int64(height),
	}
}

// Status is a point-in-time snapshot of the facade. Pure read, safe from
// any goroutine.
type Status struct {
	Running         bool      `json:"running"`
	InstanceID      string    `json:"instance_id"`
	SocketPort      int       `json:"socket_port"`
	SocketRunning   bool      `json:"socket_running"`
	XMLRPCPort      int       `json:"xmlrpc_port"`
	XMLRPCEnabled   bool      `json:"xmlrpc_enabled"`
	XMLRPCRunning   bool      `json:"xmlrpc_running"`
	RequestCount    int64     `json:"request_count"`
	LastRequestTime time.Time `json:"last_request_time"`
	Headless        bool      `json:"headless"`
}

// GetStatus returns the current snapshot.
func (b *Bridge) GetStatus() Status {
	b.mu.Lock()
	socketUp, xmlUp := b.socketUp, b.xmlUp
	b.mu.Unlock()

	st := Status{
		Running:         b.Running(),
		InstanceID:      b.instanceID,
		SocketPort:      b.socket.Port(),
		SocketRunning:   socketUp,
		XMLRPCEnabled:   b.xml != nil,
		XMLRPCRunning:   xmlUp,
		RequestCount:    b.dispatcher.RequestCount(),
		LastRequestTime: b.dispatcher.LastRequestTime(),
		Headless:        b.headless,
	}
	if b.xml != nil {
		st.XMLRPCPort = b.xml.Port()
	}
	return st
}

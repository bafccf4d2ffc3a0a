// Package xmlrpc implements the bridge's compatibility frontend: a
// synchronous, one-request-at-a-time XML-RPC endpoint on the port
// convention established by earlier tools in this ecosystem. The same
// HTTP mux also serves Prometheus metrics.
package xmlrpc

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/cadbridge/pkg/debug"
	"github.com/rhuss/cadbridge/pkg/dispatch"
	"github.com/rhuss/cadbridge/pkg/observability"
)

// executeTimeout is the fixed wait bound for XML-RPC execute calls. The
// protocol has no per-call timeout parameter.
const executeTimeout = 30 * time.Second

// maxBodyBytes bounds one request body.
const maxBodyBytes = 10 * 1024 * 1024

// Backend is what the frontend needs from the owning bridge.
type Backend interface {
	InstanceID() string
	Submit(code string, timeout time.Duration) dispatch.Result

	// CaptureView renders the active 3D view through the dispatch
	// queue and returns the get_view wire struct.
	CaptureView(width, height int, viewType string) map[string]any
}

// methodInfo backs the system.* introspection calls.
type methodInfo struct {
	help      string
	signature []string
}

var methods = map[string]methodInfo{
	"ping": {
		help:      "ping() => {pong, timestamp, instance_id}",
		signature: []string{"struct"},
	},
	"get_instance_id": {
		help:      "get_instance_id() => {instance_id}",
		signature: []string{"struct"},
	},
	"execute": {
		help:      "execute(code) => execution result struct; assign _result_ in the code to return a value",
		signature: []string{"struct", "string"},
	},
	"get_view": {
		help:      "get_view(width=800, height=600, view_type=\"Isometric\") => {success, data, format, width, height}",
		signature: []string{"struct", "int", "int", "string"},
	},
	"system.listMethods": {
		help:      "system.listMethods() => array of method names",
		signature: []string{"array"},
	},
	"system.methodHelp": {
		help:      "system.methodHelp(name) => documentation string",
		signature: []string{"string", "string"},
	},
	"system.methodSignature": {
		help:      "system.methodSignature(name) => array of signatures",
		signature: []string{"array", "string"},
	},
}

// Server is the XML-RPC frontend.
type Server struct {
	host        string
	port        int
	backend     Backend
	metricsPath string

	ln         net.Listener
	httpServer *http.Server
	running    atomic.Bool

	// callMu serializes RPC calls: the classic endpoint promises
	// one-request-at-a-time semantics to its clients.
	callMu sync.Mutex
}

// NewServer creates an unstarted server. metricsPath may be empty to
// disable the metrics endpoint.
func NewServer(host string, port int, backend Backend, metricsPath string) *Server {
	return &Server{
		host:        host,
		port:        port,
		backend:     backend,
		metricsPath: metricsPath,
	}
}

// Start binds the listener and begins serving. A bind failure is
// returned for the bridge to log as a warning; the rest of the facade
// keeps operating without this frontend.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("xmlrpc: listening on %s:%d: %w", s.host, s.port, err)
	}
	s.ln = ln
	s.running.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	if s.metricsPath != "" {
		mux.Handle(s.metricsPath, promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		// Close during Stop makes Serve return ErrServerClosed; a
		// closed listener is part of normal shutdown, not a failure.
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			if s.running.Load() {
				slog.Warn("xmlrpc serve error", "error", err)
			}
		}
	}()

	slog.Info("xmlrpc frontend listening", "addr", ln.Addr().String())
	return nil
}

// Port returns the bound port, or 0 if the listener never came up.
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Running reports whether the frontend is serving.
func (s *Server) Running() bool {
	return s.running.Load()
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "XML-RPC requires POST", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeFault(w, faultInternal, fmt.Sprintf("reading request: %v", err))
		return
	}

	name, args, err := parseCall(body)
	if err != nil {
		s.writeFault(w, faultParse, err.Error())
		return
	}

	// One call at a time, like the classic single-threaded serving
	// loop this endpoint replaces.
	s.callMu.Lock()
	result, fault := s.call(name, args)
	s.callMu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	if fault != nil {
		w.Write(marshalFault(fault.Code, fault.Message))
		return
	}
	w.Write(marshalResponse(result))
}

// Fault codes follow the common XML-RPC convention: parse errors and
// unsupported methods use the server-error range.
const (
	faultParse    = -32700
	faultNoMethod = -32601
	faultParams   = -32602
	faultInternal = -32603
)

func (s *Server) call(name string, args []any) (any, *Fault) {
	debug.Log("xmlrpc", "call", "method", name, "args", len(args))

	switch name {
	case "ping":
		return map[string]any{
			"pong":        true,
			"timestamp":   float64(time.Now().UnixNano()) / float64(time.Second),
			"instance_id": s.backend.InstanceID(),
		}, nil

	case "get_instance_id":
		return map[string]any{"instance_id": s.backend.InstanceID()}, nil

	case "execute":
		if len(args) != 1 {
			return nil, &Fault{faultParams, "execute requires exactly one argument"}
		}
		code, ok := args[0].(string)
		if !ok {
			return nil, &Fault{faultParams, "execute: code must be a string"}
		}

		res := s.backend.Submit(code, executeTimeout)

		status := "ok"
		if !res.Success {
			status = "error"
			if res.ErrorType == "TimeoutError" {
				status = "timeout"
				observability.TimeoutsTotal.WithLabelValues("xmlrpc").Inc()
			}
		}
		observability.RequestsTotal.WithLabelValues("xmlrpc", status).Inc()

		return res.Map(), nil

	case "get_view":
		width, height, viewType := 800, 600, "Isometric"
		if len(args) > 0 {
			n, ok := args[0].(int64)
			if !ok {
				return nil, &Fault{faultParams, "get_view: width must be an int"}
			}
			width = int(n)
		}
		if len(args) > 1 {
			n, ok := args[1].(int64)
			if !ok {
				return nil, &Fault{faultParams, "get_view: height must be an int"}
			}
			height = int(n)
		}
		if len(args) > 2 {
			sv, ok := args[2].(string)
			if !ok {
				return nil, &Fault{faultParams, "get_view: view_type must be a string"}
			}
			viewType = sv
		}
		return s.backend.CaptureView(width, height, viewType), nil

	case "system.listMethods":
		names := make([]any, 0, len(methods))
		for _, n := range sortedMethodNames() {
			names = append(names, n)
		}
		return names, nil

	case "system.methodHelp":
		n, fault := oneStringArg("system.methodHelp", args)
		if fault != nil {
			return nil, fault
		}
		info, ok := methods[n]
		if !ok {
			return "", nil
		}
		return info.help, nil

	case "system.methodSignature":
		n, fault := oneStringArg("system.methodSignature", args)
		if fault != nil {
			return nil, fault
		}
		info, ok := methods[n]
		if !ok {
			return []any{}, nil
		}
		sig := make([]any, len(info.signature))
		for i, t := range info.signature {
			sig[i] = t
		}
		return []any{sig}, nil

	default:
		return nil, &Fault{faultNoMethod, fmt.Sprintf("method %q is not supported", name)}
	}
}

func oneStringArg(method string, args []any) (string, *Fault) {
	if len(args) != 1 {
		return "", &Fault{faultParams, method + " requires exactly one argument"}
	}
	s, ok := args[0].(string)
	if !ok {
		return "", &Fault{faultParams, method + ": argument must be a string"}
	}
	return s, nil
}

func sortedMethodNames() []string {
	names := make([]string, 0, len(methods))
	for n := range methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Server) writeFault(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/xml")
	w.Write(marshalFault(code, message))
}

// Stop forcibly closes the listener and any in-flight connections,
// unwinding the serving loop. Close errors during shutdown are part of
// normal teardown and swallowed.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

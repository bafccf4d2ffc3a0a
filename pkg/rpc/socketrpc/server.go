// Package socketrpc implements the bridge's primary frontend: a
// line-delimited JSON-RPC 2.0 server over raw TCP. Each connection
// carries newline-terminated JSON objects, one request per line, one
// response per line.
//
// ping and get_instance_id are answered inline, bypassing the dispatch
// queue, so health checks stay responsive while a long execution
// occupies the drain loop. execute routes through the queue and blocks
// only the submitting connection's goroutine; other connections keep
// being served.
package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/cadbridge/pkg/debug"
	"github.com/rhuss/cadbridge/pkg/dispatch"
	"github.com/rhuss/cadbridge/pkg/observability"
)

// maxLineBytes bounds a single request line. Generated CAD scripts can
// be large, but not unbounded.
const maxLineBytes = 10 * 1024 * 1024

// Backend is what the frontend needs from the owning bridge: identity
// and queue submission. The frontend never owns the bridge.
type Backend interface {
	InstanceID() string
	Submit(code string, timeout time.Duration) dispatch.Result
}

// Server accepts concurrent TCP clients speaking the line protocol.
type Server struct {
	host    string
	port    int
	backend Backend

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates an unstarted server for host:port.
func NewServer(host string, port int, backend Backend) *Server {
	return &Server{
		host:    host,
		port:    port,
		backend: backend,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and spawns the accept loop. A bind failure
// is returned to the caller; the bridge treats it as a warning and
// continues without this frontend.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("socketrpc: listening on %s:%d: %w", s.host, s.port, err)
	}
	s.ln = ln
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	slog.Info("socket frontend listening", "addr", ln.Addr().String())
	return nil
}

// Port returns the bound port, which may differ from the configured one
// when 0 was requested. Returns 0 if the listener never came up.
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Running reports whether the listener is up.
func (s *Server) Running() bool {
	return s.running.Load()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Listener closed during Stop; anything else while running
			// is transient and worth a log line.
			if s.running.Load() {
				slog.Warn("socket accept error", "error", err)
				continue
			}
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		observability.ConnectionsActive.WithLabelValues("socket").Inc()
		debug.Log("socket", "client connected", "remote", conn.RemoteAddr().String())

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn serves one client until EOF or an I/O error. Requests on a
// single connection are processed in order; connections are independent,
// so an error or slow execution on one never affects another.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		observability.ConnectionsActive.WithLabelValues("socket").Dec()
		debug.Log("socket", "client disconnected", "remote", conn.RemoteAddr().String())
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			// Malformed line: report and keep the connection alive.
			s.writeResponse(conn, errorResponse(nil, CodeParseError, "Parse error", err.Error()))
			continue
		}

		s.writeResponse(conn, s.dispatchRequest(req))
	}
}

func (s *Server) dispatchRequest(req request) response {
	switch req.Method {
	case "ping":
		return resultResponse(req.ID, map[string]any{
			"pong":        true,
			"timestamp":   unixSeconds(),
			"instance_id": s.backend.InstanceID(),
		})

	case "get_instance_id":
		return resultResponse(req.ID, map[string]any{
			"instance_id": s.backend.InstanceID(),
		})

	case "execute":
		var params executeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
			}
		}
		if params.Code == nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params", "missing required param: code")
		}
		timeoutMS := params.TimeoutMS
		if timeoutMS <= 0 {
			timeoutMS = DefaultTimeoutMS
		}

		res := s.backend.Submit(*params.Code, time.Duration(timeoutMS)*time.Millisecond)

		status := "ok"
		if !res.Success {
			status = "error"
			if res.ErrorType == "TimeoutError" {
				status = "timeout"
				observability.TimeoutsTotal.WithLabelValues("socket").Inc()
			}
		}
		observability.RequestsTotal.WithLabelValues("socket", status).Inc()

		return resultResponse(req.ID, res.Map())

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) writeResponse(conn net.Conn, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		// A result value that cannot serialize must not kill the
		// connection; degrade to a stringified error envelope.
		data, _ = json.Marshal(errorResponse(resp.ID, CodeParseError, "Response serialization failed", err.Error()))
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		debug.Log("socket", "write failed", "error", err)
	}
}

// Stop closes the listener and all live connections, then waits for the
// handler goroutines within a bound. Blocked executes unwind when their
// timeouts fire; stragglers are daemonic and not fatal.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.ln != nil {
		s.ln.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("socket frontend shutdown timed out; abandoning handlers")
	}
}

func unixSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/cadbridge/pkg/dispatch"
)

// fakeBackend executes inline: it echoes the code back as the value,
// optionally sleeping first to simulate a busy queue.
type fakeBackend struct {
	instanceID string
	delay      time.Duration
}

func (f *fakeBackend) InstanceID() string { return f.instanceID }

func (f *fakeBackend) Submit(code string, timeout time.Duration) dispatch.Result {
	if f.delay > 0 {
		if f.delay > timeout {
			time.Sleep(timeout)
			return dispatch.Failure("TimeoutError", "execution did not complete in time")
		}
		time.Sleep(f.delay)
	}
	return dispatch.Result{Success: true, Value: code, Stdout: "", Duration: time.Millisecond}
}

func startServer(t *testing.T, backend Backend) *Server {
	t.Helper()
	s := NewServer("127.0.0.1", 0, backend)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func dialServer(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, line string) map[string]any {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	respLine, err := r.ReadString('\n')
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(respLine), &resp))
	return resp
}

func TestPing(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "inst-1"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, true, result["pong"])
	assert.Equal(t, "inst-1", result["instance_id"])
	assert.NotNil(t, result["timestamp"])
	assert.EqualValues(t, 1, resp["id"])
}

func TestGetInstanceID(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "inst-2"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r, `{"jsonrpc":"2.0","id":"abc","method":"get_instance_id"}`)

	result := resp["result"].(map[string]any)
	assert.Equal(t, "inst-2", result["instance_id"])
	assert.Equal(t, "abc", resp["id"])
}

func TestExecute(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r,
		`{"jsonrpc":"2.0","id":7,"method":"execute","params":{"code":"_result_ = 1"}}`)

	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "_result_ = 1", result["result"])
}

func TestExecuteEmptyCodeIsValid(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r,
		`{"jsonrpc":"2.0","id":8,"method":"execute","params":{"code":""}}`)

	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
}

func TestExecuteMissingCode(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r,
		`{"jsonrpc":"2.0","id":9,"method":"execute","params":{}}`)

	require.NotNil(t, resp["error"])
	errObj := resp["error"].(map[string]any)
	assert.EqualValues(t, CodeInvalidParams, errObj["code"])
}

func TestMethodNotFound(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r, `{"jsonrpc":"2.0","id":2,"method":"open_document"}`)

	require.NotNil(t, resp["error"])
	errObj := resp["error"].(map[string]any)
	assert.EqualValues(t, CodeMethodNotFound, errObj["code"])
	assert.Equal(t, "Method not found", errObj["message"])
}

func TestParseErrorKeepsConnectionAlive(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r, `{this is not json`)
	require.NotNil(t, resp["error"])
	errObj := resp["error"].(map[string]any)
	assert.EqualValues(t, CodeParseError, errObj["code"])
	assert.Equal(t, "Parse error", errObj["message"])

	// Connection still serves subsequent requests.
	resp = roundTrip(t, conn, r, `{"jsonrpc":"2.0","id":3,"method":"ping"}`)
	require.Nil(t, resp["error"])
}

func TestTimeoutResultPassesThrough(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i", delay: time.Second})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r,
		`{"jsonrpc":"2.0","id":4,"method":"execute","params":{"code":"slow","timeout_ms":50}}`)

	require.Nil(t, resp["error"], "timeouts are results, not protocol errors")
	result := resp["result"].(map[string]any)
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "TimeoutError", result["error_type"])
}

// TestConcurrentConnections verifies a slow execute on one connection
// does not block pings on another.
func TestConcurrentConnections(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i", delay: 500 * time.Millisecond})

	slowConn, slowReader := dialServer(t, s)
	fastConn, fastReader := dialServer(t, s)

	type outcome struct {
		resp    map[string]any
		elapsed time.Duration
	}
	slowDone := make(chan outcome, 1)
	go func() {
		start := time.Now()
		resp := roundTrip(t, slowConn, slowReader,
			`{"jsonrpc":"2.0","id":1,"method":"execute","params":{"code":"slow","timeout_ms":5000}}`)
		slowDone <- outcome{resp, time.Since(start)}
	}()

	// Give the slow execute a head start, then ping on the other conn.
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	resp := roundTrip(t, fastConn, fastReader, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	pingElapsed := time.Since(start)

	require.Nil(t, resp["error"])
	assert.Less(t, pingElapsed, 200*time.Millisecond,
		"ping must not wait for the slow execution")

	slow := <-slowDone
	require.Nil(t, slow.resp["error"])
	assert.GreaterOrEqual(t, slow.elapsed, 400*time.Millisecond)
}

func TestLargeCodeLine(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	big := strings.Repeat("# padding\n", 20000)
	req := map[string]any{
		"jsonrpc": "2.0", "id": 5, "method": "execute",
		"params": map[string]any{"code": big},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	resp := roundTrip(t, conn, r, string(data))
	require.Nil(t, resp["error"])
}

func TestStopClosesConnections(t *testing.T) {
	s := startServer(t, &fakeBackend{instanceID: "i"})
	conn, r := dialServer(t, s)

	resp := roundTrip(t, conn, r, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Nil(t, resp["error"])

	s.Stop()
	assert.False(t, s.Running())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := r.ReadString('\n')
	assert.Error(t, err, "connection should be closed after Stop")
}

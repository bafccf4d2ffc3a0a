// Package client is a Go client for the bridge's line-delimited JSON-RPC
// socket protocol. It is what cmd/mcp-server uses to forward tool calls
// to a running bridge, and doubles as the integration-test harness.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// ExecutionResult mirrors the wire shape of one execute response.
type ExecutionResult struct {
	Success         bool    `json:"success"`
	Result          any     `json:"result"`
	Stdout          string  `json:"stdout"`
	Stderr          string  `json:"stderr"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`
	ErrorType       string  `json:"error_type,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	ErrorTraceback  string  `json:"error_traceback,omitempty"`
}

// PingInfo is the response to a ping call.
type PingInfo struct {
	Pong       bool    `json:"pong"`
	Timestamp  float64 `json:"timestamp"`
	InstanceID string  `json:"instance_id"`
}

// RPCError is a protocol-level error envelope from the bridge.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client holds one connection to a bridge. Calls on a single client are
// serialized; use one client per concurrent caller.
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	mu     sync.Mutex
	nextID int64
}

// Dial connects to a bridge's socket frontend.
func Dial(host string, port int) (*Client, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("client: connecting to %s:%d: %w", host, port, err)
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 64*1024),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping checks liveness. Answered inline by the bridge, so it returns
// promptly even while a long execution occupies the queue.
func (c *Client) Ping(ctx context.Context) (*PingInfo, error) {
	var info PingInfo
	if err := c.call(ctx, "ping", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// InstanceID returns the identity of the bridge instance on the other
// end of the connection.
func (c *Client) InstanceID(ctx context.Context) (string, error) {
	var resp struct {
		InstanceID string `json:"instance_id"`
	}
	if err := c.call(ctx, "get_instance_id", nil, &resp); err != nil {
		return "", err
	}
	return resp.InstanceID, nil
}

// Execute submits code and waits for its result. A zero timeout lets the
// bridge apply its default. A TimeoutError outcome arrives as a Result
// with Success=false, not as a Go error; Go errors mean the transport or
// protocol failed.
func (c *Client) Execute(ctx context.Context, code string, timeout time.Duration) (*ExecutionResult, error) {
	params := map[string]any{"code": code}
	if timeout > 0 {
		params["timeout_ms"] = int(timeout / time.Millisecond)
	}
	var res ExecutionResult
	if err := c.call(ctx, "execute", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// call performs one request/response round trip. The connection carries
// strictly alternating request and response lines, so calls hold the
// client lock end to end.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("client: encoding %s request: %w", method, err)
	}
	data = append(data, '\n')

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("client: sending %s: %w", method, err)
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("client: reading %s response: %w", method, err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("client: decoding %s response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("client: decoding %s result: %w", method, err)
		}
	}
	return nil
}

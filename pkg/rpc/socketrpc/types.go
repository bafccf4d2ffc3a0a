package socketrpc

import "encoding/json"

// JSON-RPC 2.0 error codes used by the socket protocol.
const (
	CodeParseError     = -32700
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
)

// DefaultTimeoutMS is applied when an execute request omits timeout_ms.
const DefaultTimeoutMS = 30000

// request is one line-delimited JSON-RPC 2.0 request.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// response is one line-delimited JSON-RPC 2.0 response.
type response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// executeParams carries the execute method's arguments. Code is a
// pointer so a missing key is distinguishable from an empty snippet,
// which is valid and executes as a no-op.
type executeParams struct {
	Code      *string `json:"code"`
	TimeoutMS int     `json:"timeout_ms"`
}

func errorResponse(id any, code int, message, data string) response {
	return response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	}
}

func resultResponse(id any, result any) response {
	return response{JSONRPC: "2.0", ID: id, Result: result}
}

package xmlrpc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Call performs one XML-RPC method call against url. Faults come back as
// a *Fault error; transport problems as ordinary errors. Used by
// cmd/mcp-server for get_view and by Go-side tooling.
func Call(url, method string, args ...any) (any, error) {
	body := marshalCall(method, args)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	resp, err := httpClient.Post(url, "text/xml", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: reading %s response: %w", method, err)
	}
	return parseResponse(data)
}

// marshalCall encodes a <methodCall> envelope.
func marshalCall(method string, args []any) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("<methodCall><methodName>")
	b.WriteString(method)
	b.WriteString("</methodName><params>")
	for _, arg := range args {
		b.WriteString("<param>")
		writeValue(&b, arg)
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return b.Bytes()
}

// Command mcp-server exposes a running bridge to MCP clients over stdio.
// It forwards tool calls to the bridge's socket frontend (and the XML-RPC
// frontend for view capture); it executes nothing itself.
//
// Configuration via environment variables:
//
//	CADBRIDGE_HOST         - bridge host (default: "localhost")
//	CADBRIDGE_PORT         - socket frontend port (default: 9876)
//	CADBRIDGE_XMLRPC_PORT  - XML-RPC frontend port, for get_view (default: 9875)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/cadbridge/pkg/client"
	"github.com/rhuss/cadbridge/pkg/rpc/xmlrpc"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mcp-server failed", "error", err)
		os.Exit(1)
	}
}

type bridgeAddr struct {
	host       string
	socketPort int
	xmlrpcPort int
}

func (a bridgeAddr) xmlrpcURL() string {
	return fmt.Sprintf("http://%s:%d/", a.host, a.xmlrpcPort)
}

// dial opens a fresh connection per tool call, so a restarted bridge is
// picked up without restarting this process.
func (a bridgeAddr) dial() (*client.Client, error) {
	return client.Dial(a.host, a.socketPort)
}

func run() error {
	addr := bridgeAddr{
		host:       envOrDefault("CADBRIDGE_HOST", "localhost"),
		socketPort: envIntOrDefault("CADBRIDGE_PORT", 9876),
		xmlrpcPort: envIntOrDefault("CADBRIDGE_XMLRPC_PORT", 9875),
	}

	s := mcp.NewServer(
		&mcp.Implementation{Name: "cadbridge", Version: "v1.0.0"},
		nil,
	)

	type ExecuteInput struct {
		Code      string `json:"code" jsonschema_description:"Python code to execute inside FreeCAD. Assign _result_ to return a value."`
		TimeoutMS int    `json:"timeout_ms,omitempty" jsonschema_description:"Wait bound in milliseconds (default 30000). The code keeps running after a timeout."`
	}
	mcp.AddTool(s, &mcp.Tool{
		Name:        "execute_python",
		Description: "Execute Python code in the connected FreeCAD instance and return its result, stdout, and errors",
	}, func(_ context.Context, _ *mcp.CallToolRequest, input ExecuteInput) (*mcp.CallToolResult, struct{}, error) {
		c, err := addr.dial()
		if err != nil {
			return nil, struct{}{}, err
		}
		defer c.Close()

		res, err := c.Execute(context.Background(), input.Code,
			time.Duration(input.TimeoutMS)*time.Millisecond)
		if err != nil {
			return nil, struct{}{}, err
		}
		return jsonResult(res)
	})

	type ViewInput struct {
		Width    int    `json:"width,omitempty" jsonschema_description:"Image width in pixels (default 800)"`
		Height   int    `json:"height,omitempty" jsonschema_description:"Image height in pixels (default 600)"`
		ViewType string `json:"view_type,omitempty" jsonschema_description:"Camera preset: FitAll, Isometric, Front, Back, Top, Bottom, Left, Right"`
	}
	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_view",
		Description: "Capture a screenshot of FreeCAD's active 3D view",
	}, func(_ context.Context, _ *mcp.CallToolRequest, input ViewInput) (*mcp.CallToolResult, struct{}, error) {
		width, height, viewType := input.Width, input.Height, input.ViewType
		if width <= 0 {
			width = 800
		}
		if height <= 0 {
			height = 600
		}
		if viewType == "" {
			viewType = "Isometric"
		}

		got, err := xmlrpc.Call(addr.xmlrpcURL(), "get_view",
			int64(width), int64(height), viewType)
		if err != nil {
			return nil, struct{}{}, err
		}
		return jsonResult(got)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "ping",
		Description: "Check that the FreeCAD bridge is reachable and return its instance id",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		c, err := addr.dial()
		if err != nil {
			return nil, struct{}{}, err
		}
		defer c.Close()

		info, err := c.Ping(context.Background())
		if err != nil {
			return nil, struct{}{}, err
		}
		return jsonResult(info)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_status",
		Description: "Report the bridge connection status as seen from this MCP server",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		status := map[string]any{
			"host":        addr.host,
			"socket_port": addr.socketPort,
			"xmlrpc_port": addr.xmlrpcPort,
			"reachable":   false,
		}
		if c, err := addr.dial(); err == nil {
			if info, err := c.Ping(context.Background()); err == nil {
				status["reachable"] = true
				status["instance_id"] = info.InstanceID
			}
			c.Close()
		}
		return jsonResult(status)
	})

	return s.Run(context.Background(), &mcp.StdioTransport{})
}

// jsonResult renders a value as a JSON text content block.
func jsonResult(v any) (*mcp.CallToolResult, struct{}, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, struct{}{}, fmt.Errorf("encoding result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, struct{}{}, nil
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

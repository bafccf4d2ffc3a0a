package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/cadbridge/pkg/client"
	"github.com/rhuss/cadbridge/pkg/interp"
)

func newBridge(t *testing.T, opts Options) (*Bridge, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	if opts.Runner == nil {
		opts.Runner = interp.NewEngine()
	}
	opts.SocketHost = "127.0.0.1"
	if opts.XMLRPCEnabled {
		opts.XMLRPCHost = "127.0.0.1"
	}
	opts.Stdout = &out
	b := New(opts)
	t.Cleanup(b.Stop)
	return b, &out
}

func dialBridge(t *testing.T, b *Bridge) *client.Client {
	t.Helper()
	c, err := client.Dial("127.0.0.1", b.GetStatus().SocketPort)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStartStopIdempotent(t *testing.T) {
	b, out := newBridge(t, Options{})

	b.Start()
	b.Start()
	assert.True(t, b.Running())
	assert.Equal(t, 1, strings.Count(out.String(), InstanceIDPrefix),
		"double start must not reprint the identity line")

	b.Stop()
	b.Stop()
	assert.False(t, b.Running())
}

func TestInstanceIDLine(t *testing.T) {
	b, out := newBridge(t, Options{})
	b.Start()

	line, _, found := strings.Cut(out.String(), "\n")
	require.True(t, found)
	assert.Equal(t, InstanceIDPrefix+b.InstanceID(), line)
}

func TestExecuteEndToEnd(t *testing.T) {
	b, _ := newBridge(t, Options{})
	b.Start()
	c := dialBridge(t, b)

	res, err := c.Execute(context.Background(), "_result_ = 41 + 1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, float64(42), res.Result)
}

func TestNamespacePersistsAcrossCalls(t *testing.T) {
	b, _ := newBridge(t, Options{})
	b.Start()
	c := dialBridge(t, b)
	ctx := context.Background()

	res, err := c.Execute(ctx, "base = 40", 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = c.Execute(ctx, "_result_ = base + 2", 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, float64(42), res.Result)
}

func TestStatusCounts(t *testing.T) {
	b, _ := newBridge(t, Options{})
	b.Start()

	before := b.GetStatus()
	again := b.GetStatus()
	assert.Equal(t, before.RequestCount, again.RequestCount)
	assert.Equal(t, before.LastRequestTime, again.LastRequestTime)

	c := dialBridge(t, b)
	_, err := c.Execute(context.Background(), "x = 1", 5*time.Second)
	require.NoError(t, err)

	after := b.GetStatus()
	assert.Equal(t, before.RequestCount+1, after.RequestCount)
	assert.True(t, after.LastRequestTime.After(before.LastRequestTime))
	assert.True(t, after.Running)
	assert.True(t, after.Headless, "no driver supplied means headless mode")
}

func TestPingBypassesQueue(t *testing.T) {
	b, _ := newBridge(t, Options{})
	b.Start()

	slow := dialBridge(t, b)
	fast := dialBridge(t, b)

	done := make(chan struct{})
	go func() {
		defer close(done)
		slow.Execute(context.Background(), "sleep(1)", 5*time.Second)
	}()

	// Let the slow execution occupy the drain loop, then ping.
	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	info, err := fast.Ping(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, info.Pong)
	assert.Equal(t, b.InstanceID(), info.InstanceID)
	assert.Less(t, elapsed, 300*time.Millisecond,
		"ping must not wait behind the queued execution")
	<-done
}

func TestPortInUseResilience(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	taken := ln.Addr().(*net.TCPAddr).Port

	b, _ := newBridge(t, Options{
		SocketPort:    taken,
		XMLRPCEnabled: true,
	})
	b.Start()

	st := b.GetStatus()
	assert.True(t, st.Running, "facade keeps running without the socket frontend")
	assert.False(t, st.SocketRunning)
	assert.True(t, st.XMLRPCRunning)

	// The surviving frontend still answers ping.
	body := `<?xml version="1.0"?><methodCall><methodName>ping</methodName><params></params></methodCall>`
	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/", st.XMLRPCPort),
		"text/xml", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pong")
	assert.Contains(t, string(data), b.InstanceID())
}

func TestCaptureViewWithoutProvider(t *testing.T) {
	b, _ := newBridge(t, Options{})
	b.Start()

	got := b.CaptureView(800, 600, "Isometric")
	assert.Equal(t, false, got["success"])
	assert.Contains(t, got["error"], "no active view")
}

type stubViews struct {
	lastViewType string
}

func (s *stubViews) Capture(width, height int, viewType string) ([]byte, error) {
	s.lastViewType = viewType
	if viewType == "Broken" {
		return nil, fmt.Errorf("render failed")
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func TestCaptureViewWithProvider(t *testing.T) {
	views := &stubViews{}
	b, _ := newBridge(t, Options{Views: views})
	b.Start()

	got := b.CaptureView(320, 240, "Front")
	assert.Equal(t, true, got["success"])
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got["data"])
	assert.Equal(t, "png", got["format"])
	assert.Equal(t, int64(320), got["width"])
	assert.Equal(t, int64(240), got["height"])
	assert.Equal(t, "Front", views.lastViewType)
}

func TestCaptureViewProviderError(t *testing.T) {
	b, _ := newBridge(t, Options{Views: &stubViews{}})
	b.Start()

	got := b.CaptureView(320, 240, "Broken")
	assert.Equal(t, false, got["success"])
	assert.Contains(t, got["error"], "render failed")
}

func TestRunForever(t *testing.T) {
	b, _ := newBridge(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.RunForever(ctx)
	}()

	require.Eventually(t, b.Running, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunForever did not return after cancellation")
	}
	assert.False(t, b.Running())
}

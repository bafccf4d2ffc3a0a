// Command bridge runs the headless cadbridge daemon: the dispatch queue,
// the built-in interpreter, and both network frontends.
//
// Configuration is layered: defaults, then a YAML file (-config flag,
// CADBRIDGE_CONFIG env, ./cadbridge.yaml, /etc/cadbridge/config.yaml),
// then environment variables:
//
//	CADBRIDGE_HOST            - bind host for both frontends
//	CADBRIDGE_PORT            - socket frontend port (default: 9876)
//	CADBRIDGE_XMLRPC_PORT     - XML-RPC frontend port (default: 9875)
//	CADBRIDGE_XMLRPC_ENABLED  - enable the XML-RPC frontend (default: true)
//	CADBRIDGE_HISTORY         - history store: memory, sqlite, none
//	CADBRIDGE_DEBUG           - debug categories (e.g. "dispatch,socket")
//	CADBRIDGE_LOG_LEVEL       - ERROR, WARN, INFO, DEBUG, TRACE
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/cadbridge/pkg/bridge"
	"github.com/rhuss/cadbridge/pkg/config"
	"github.com/rhuss/cadbridge/pkg/debug"
	"github.com/rhuss/cadbridge/pkg/dispatch"
	"github.com/rhuss/cadbridge/pkg/history"
	historymemory "github.com/rhuss/cadbridge/pkg/history/memory"
	historysqlite "github.com/rhuss/cadbridge/pkg/history/sqlite"
	"github.com/rhuss/cadbridge/pkg/interp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bridge failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Log.Debug, cfg.Log.Level)

	// Execution history store.
	var observer dispatch.Observer
	switch cfg.History.Type {
	case "memory":
		store := historymemory.New(cfg.History.MaxSize)
		observer = history.NewRecorder(store)
		slog.Info("history enabled", "type", "memory", "max_size", cfg.History.MaxSize)
	case "sqlite":
		store, err := historysqlite.New(cfg.History.SQLite.Path)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer store.Close()
		observer = history.NewRecorder(store)
		slog.Info("history enabled", "type", "sqlite", "path", cfg.History.SQLite.Path)
	case "none":
		slog.Info("history disabled")
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	b := bridge.New(bridge.Options{
		SocketHost:     cfg.Socket.Host,
		SocketPort:     cfg.Socket.Port,
		XMLRPCHost:     cfg.XMLRPC.Host,
		XMLRPCPort:     cfg.XMLRPC.Port,
		XMLRPCEnabled:  cfg.XMLRPC.Enabled,
		MetricsPath:    metricsPath,
		TickInterval:   cfg.Dispatch.TickInterval,
		DefaultTimeout: cfg.Dispatch.DefaultTimeout,
		Runner:         interp.NewEngine(),
		Observer:       observer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b.RunForever(ctx)
	return nil
}

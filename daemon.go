package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linch-mind/daemon/internal/config"
	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/history"
	chsink "github.com/linch-mind/daemon/internal/history/clickhouse"
	"github.com/linch-mind/daemon/internal/ipc"
	"github.com/linch-mind/daemon/internal/metrics"
	"github.com/linch-mind/daemon/internal/registry"
	"github.com/linch-mind/daemon/internal/registry/factory"
	"github.com/linch-mind/daemon/internal/server"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type Descriptor = connector.Descriptor

type RuntimeStatus = connector.RuntimeStatus

type Supervisor = connector.Supervisor

// LoadConfig reads the daemon configuration (empty path loads defaults).
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Daemon bundles the supervisor, health monitor, registry, history sinks,
// and IPC server into one embeddable unit. Construct it with New, run it
// with Start, and tear it down with Close.
type Daemon struct {
	cfg     *Config
	log     *slog.Logger
	store   registry.Store
	sinks   []history.Sink
	sup     *connector.Supervisor
	monitor *connector.Monitor
	ipcSrv  *ipc.Server
	debug   *http.Server
}

// New wires the daemon from cfg. Nothing is listening yet; call Start.
func New(cfg *Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}

	for _, dir := range []string{cfg.DataDir, cfg.RunDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	store, err := factory.NewFromDSN(cfg.RegistryDSN)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("registry schema: %w", err)
	}

	var sinks []history.Sink
	if cfg.ClickHouseAddr != "" {
		sink, err := chsink.New(chsink.Options{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Warn("clickhouse history sink disabled", "err", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	sup := connector.NewSupervisor(connector.Options{
		Resolver:         connector.NewResolver(cfg.SearchDirs(), log),
		Launcher:         connector.NewLauncher(cfg.SocketPath, cfg.Log, log),
		Store:            store,
		Sinks:            sinks,
		StopGrace:        cfg.StopGrace,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Log:              log,
	})
	if err := sup.LoadRegistered(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}

	monitor := connector.NewMonitor(connector.MonitorOptions{
		Supervisor:       sup,
		Launcher:         connector.NewLauncher(cfg.SocketPath, cfg.Log, log),
		RunDir:           cfg.RunDir,
		Interval:         cfg.HealthInterval,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Log:              log,
	})

	return &Daemon{
		cfg:     cfg,
		log:     log,
		store:   store,
		sinks:   sinks,
		sup:     sup,
		monitor: monitor,
		ipcSrv:  ipc.NewServer(cfg.SocketPath, server.Routes(sup, cfg), log),
	}, nil
}

// Supervisor exposes the lifecycle state machine for embedding callers.
func (d *Daemon) Supervisor() *connector.Supervisor { return d.sup }

// Start binds the IPC socket, auto-starts enabled connectors, and launches
// the health monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.ipcSrv.Start(); err != nil {
		return err
	}
	d.sup.StartEnabled()
	d.monitor.Start(ctx)
	if d.cfg.DebugAddr != "" {
		d.debug = server.NewDebugServer(d.cfg.DebugAddr, d.sup)
		d.log.Info("debug listener started", "addr", d.cfg.DebugAddr)
	}
	d.log.Info("daemon ready", "socket", d.cfg.SocketPath, "registry", d.cfg.RegistryDSN)
	return nil
}

// Close tears the daemon down: stop serving requests, halt the monitor,
// terminate connector children, then release storage and sinks.
func (d *Daemon) Close() {
	if err := d.ipcSrv.Close(); err != nil {
		d.log.Warn("ipc server close failed", "err", err)
	}
	d.monitor.Stop()
	d.sup.Shutdown()
	server.StopDebugServer(d.debug)
	for _, sink := range d.sinks {
		_ = sink.Close()
	}
	_ = d.store.Close()
}

// RegisterMetrics installs the daemon's Prometheus collectors, typically on
// prometheus.DefaultRegisterer.
func RegisterMetrics(r prometheus.Registerer) error {
	return metrics.Register(r)
}

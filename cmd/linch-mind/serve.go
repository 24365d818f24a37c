package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linch-mind/daemon"
	"github.com/linch-mind/daemon/internal/ipc"
	"github.com/linch-mind/daemon/internal/logger"
	"github.com/linch-mind/daemon/internal/pidfile"
)

// runServe wires the daemon together and blocks until SIGINT/SIGTERM.
func runServe(configPath, socketOverride string) error {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if socketOverride != "" {
		cfg.SocketPath = socketOverride
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := os.MkdirAll(cfg.RunDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	// Singleton check before touching any shared resource.
	if err := pidfile.Acquire(cfg.PIDFilePath()); err != nil {
		var running *pidfile.ErrAlreadyRunning
		if errors.As(err, &running) {
			return fmt.Errorf("%s: %s", ipc.CodeAlreadyRunning, running.Error())
		}
		return err
	}
	defer pidfile.Release(cfg.PIDFilePath())

	if err := daemon.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "err", err)
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	if err := d.Start(context.Background()); err != nil {
		d.Close()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	d.Close()
	return nil
}

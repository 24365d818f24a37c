// Package config loads daemon configuration from a TOML file with
// environment-variable overrides (LINCH_MIND_ prefix).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/linch-mind/daemon/internal/logger"
)

// Config is the top-level TOML structure.
type Config struct {
	// SocketPath is the IPC endpoint: a unix socket path, or a named pipe
	// path (\\.\pipe\...) on Windows. Empty selects the platform default
	// under RunDir.
	SocketPath string `toml:"socket_path" mapstructure:"socket_path"`

	DataDir string `toml:"data_dir" mapstructure:"data_dir"`
	RunDir  string `toml:"run_dir" mapstructure:"run_dir"`
	LogDir  string `toml:"log_dir" mapstructure:"log_dir"`

	// ConnectorsDir holds installed connector bundles (one subdirectory per
	// connector id) and is always searched first. DevConnectorsDir, when
	// set, is the fallback for local builds not yet installed.
	ConnectorsDir    string `toml:"connectors_dir" mapstructure:"connectors_dir"`
	DevConnectorsDir string `toml:"dev_connectors_dir" mapstructure:"dev_connectors_dir"`

	HealthInterval   time.Duration `toml:"health_interval" mapstructure:"health_interval"`
	HeartbeatTimeout time.Duration `toml:"heartbeat_timeout" mapstructure:"heartbeat_timeout"`
	StopGrace        time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`

	// RegistryDSN selects the registration store: a bare path or sqlite://
	// path for SQLite, postgres:// for PostgreSQL. Empty means
	// DataDir/registry.db.
	RegistryDSN string `toml:"registry_dsn" mapstructure:"registry_dsn"`

	// ClickHouseAddr enables the lifecycle-event history sink when set.
	ClickHouseAddr     string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	ClickHouseDatabase string `toml:"clickhouse_database" mapstructure:"clickhouse_database"`
	ClickHouseUser     string `toml:"clickhouse_user" mapstructure:"clickhouse_user"`
	ClickHousePassword string `toml:"clickhouse_password" mapstructure:"clickhouse_password"`

	// DebugAddr exposes /healthz and /metrics over HTTP when set, e.g.
	// "127.0.0.1:9100". Empty disables the listener.
	DebugAddr string `toml:"debug_addr" mapstructure:"debug_addr"`

	LogLevel string            `toml:"log_level" mapstructure:"log_level"`
	Log      logger.FileConfig `toml:"log" mapstructure:"log"`

	// Connectors carries per-connector settings served verbatim through the
	// pull-config call; the daemon never interprets them.
	Connectors map[string]map[string]any `toml:"connectors" mapstructure:"connectors"`
}

// Load reads path (optional; empty loads defaults only), applies env
// overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("LINCH_MIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	base := defaultBaseDir()
	if c.DataDir == "" {
		c.DataDir = filepath.Join(base, "data")
	}
	if c.RunDir == "" {
		c.RunDir = filepath.Join(base, "run")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(base, "logs")
	}
	if c.ConnectorsDir == "" {
		c.ConnectorsDir = filepath.Join(base, "connectors")
	}
	if c.SocketPath == "" {
		c.SocketPath = defaultSocketPath(c.RunDir)
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.RegistryDSN == "" {
		c.RegistryDSN = filepath.Join(c.DataDir, "registry.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = filepath.Join(c.LogDir, "connectors")
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.HeartbeatTimeout < time.Second {
		return fmt.Errorf("heartbeat_timeout %s too small", c.HeartbeatTimeout)
	}
	return nil
}

// SearchDirs returns connector base directories in resolution order: the
// installed connectors directory first, then the development directory as a
// fallback.
func (c *Config) SearchDirs() []string {
	dirs := []string{c.ConnectorsDir}
	if c.DevConnectorsDir != "" {
		dirs = append(dirs, c.DevConnectorsDir)
	}
	return dirs
}

// PIDFilePath is where the daemon records its own PID.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.RunDir, "linch-mind.pid")
}

// ConnectorSettings returns the config blob for one connector; missing ids
// get an empty map so a connector always receives a valid document.
func (c *Config) ConnectorSettings(id string) map[string]any {
	if s, ok := c.Connectors[id]; ok {
		return s
	}
	return map[string]any{}
}

func defaultBaseDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".linch-mind")
	}
	return filepath.Join(os.TempDir(), "linch-mind")
}

func defaultSocketPath(runDir string) string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\linch-mind-daemon`
	}
	return filepath.Join(runDir, "daemon.sock")
}

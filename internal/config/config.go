// Package config handles berth configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for berth.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Default settings for nodes
	NodeDefaults NodeConfig `yaml:"node_defaults" mapstructure:"node_defaults"`

	// Peer registry settings
	Peers PeersConfig `yaml:"peers" mapstructure:"peers"`

	// UI settings
	UI UIConfig `yaml:"ui" mapstructure:"ui"`
}

// GlobalConfig contains global berth settings.
type GlobalConfig struct {
	// DataDir is where berth stores its data (default: ~/.local/share/berth).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/berth).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// NodeConfig contains default settings applied to new nodes.
type NodeConfig struct {
	// Binary is the ipfs binary path. Empty means locate one at
	// start time (bundled, PATH, then platform default).
	Binary string `yaml:"binary" mapstructure:"binary"`

	// RepoDir is the default IPFS repository directory.
	RepoDir string `yaml:"repo_dir" mapstructure:"repo_dir"`

	// APIAddress is the multiaddr the daemon API listens on.
	APIAddress string `yaml:"api_address" mapstructure:"api_address"`

	// ExtraArgs are extra daemon arguments, shell-style quoted.
	ExtraArgs string `yaml:"extra_args" mapstructure:"extra_args"`

	// StartupTimeout bounds how long to wait for the API to come up.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout"`

	// ShutdownTimeout bounds graceful shutdown before escalating.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// ReadyProbe enables polling the daemon API for readiness. When
	// disabled, startup waits a fixed grace period instead.
	ReadyProbe bool `yaml:"ready_probe" mapstructure:"ready_probe"`
}

// PeersConfig contains peer registry settings.
type PeersConfig struct {
	// RegistryURL is where the peer list is fetched from. The
	// registry serves one multiaddr per line.
	RegistryURL string `yaml:"registry_url" mapstructure:"registry_url"`

	// FetchTimeout bounds the registry HTTP request.
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`

	// AutoConnect connects registry peers after a node starts.
	AutoConnect bool `yaml:"auto_connect" mapstructure:"auto_connect"`

	// BootstrapAdd also adds registry peers to the bootstrap list.
	BootstrapAdd bool `yaml:"bootstrap_add" mapstructure:"bootstrap_add"`
}

// UIConfig contains status dashboard settings.
type UIConfig struct {
	// RefreshInterval is how often the dashboard refreshes.
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`

	// LogLines is how many daemon log lines the dashboard tails.
	LogLines int `yaml:"log_lines" mapstructure:"log_lines"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "berth"),
			ConfigDir: filepath.Join(homeDir, ".config", "berth"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/berth.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		NodeDefaults: NodeConfig{
			Binary:          "",
			RepoDir:         filepath.Join(homeDir, ".ipfs"),
			APIAddress:      "/ip4/127.0.0.1/tcp/5001",
			ExtraArgs:       "",
			StartupTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			ReadyProbe:      true,
		},
		Peers: PeersConfig{
			RegistryURL:  "https://peers.berth.sh/v1/peers.txt",
			FetchTimeout: 10 * time.Second,
			AutoConnect:  true,
			BootstrapAdd: true,
		},
		UI: UIConfig{
			RefreshInterval: 1 * time.Second,
			LogLines:        100,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}

	if c.NodeDefaults.StartupTimeout < time.Second {
		return fmt.Errorf("node_defaults.startup_timeout must be at least 1s")
	}

	if c.NodeDefaults.ShutdownTimeout < time.Second {
		return fmt.Errorf("node_defaults.shutdown_timeout must be at least 1s")
	}

	if c.Peers.FetchTimeout < time.Second {
		return fmt.Errorf("peers.fetch_timeout must be at least 1s")
	}

	if c.UI.RefreshInterval < 100*time.Millisecond {
		return fmt.Errorf("ui.refresh_interval must be at least 100ms")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "berth.db")
}

// NodeDir returns the per-node state directory (log and pid files).
func (c *Config) NodeDir(name string) string {
	return filepath.Join(c.Global.DataDir, "nodes", name)
}

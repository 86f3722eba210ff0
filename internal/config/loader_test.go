package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NodeDefaults.APIAddress != "/ip4/127.0.0.1/tcp/5001" {
		t.Errorf("unexpected default api address: %s", cfg.NodeDefaults.APIAddress)
	}
	if !strings.HasSuffix(cfg.NodeDefaults.RepoDir, ".ipfs") {
		t.Errorf("default repo dir should end in .ipfs, got %s", cfg.NodeDefaults.RepoDir)
	}
	if !cfg.NodeDefaults.ReadyProbe {
		t.Error("ready probe should default to enabled")
	}
	if cfg.NodeDefaults.StartupTimeout != 30*time.Second {
		t.Errorf("unexpected startup timeout: %v", cfg.NodeDefaults.StartupTimeout)
	}

	wantDB := filepath.Join(cfg.Global.DataDir, "berth.db")
	if got := cfg.DatabasePath(); got != wantDB {
		t.Errorf("DatabasePath() = %s, want %s", got, wantDB)
	}

	cfg.Database.Path = "/tmp/other.db"
	if got := cfg.DatabasePath(); got != "/tmp/other.db" {
		t.Errorf("DatabasePath() = %s, want explicit path", got)
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/x/y", filepath.Join(home, "x", "y")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		if got := expandTilde(tt.in); got != tt.want {
			t.Errorf("expandTilde(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	content := `
node_defaults:
  repo_dir: /srv/ipfs
  startup_timeout: 45s
peers:
  registry_url: https://example.com/peers.txt
  auto_connect: false
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.NodeDefaults.RepoDir != "/srv/ipfs" {
		t.Errorf("repo_dir = %s, want /srv/ipfs", cfg.NodeDefaults.RepoDir)
	}
	if cfg.NodeDefaults.StartupTimeout != 45*time.Second {
		t.Errorf("startup_timeout = %v, want 45s", cfg.NodeDefaults.StartupTimeout)
	}
	if cfg.Peers.RegistryURL != "https://example.com/peers.txt" {
		t.Errorf("registry_url = %s", cfg.Peers.RegistryURL)
	}
	if cfg.Peers.AutoConnect {
		t.Error("auto_connect should be false")
	}
	// Untouched fields keep defaults
	if cfg.NodeDefaults.APIAddress != "/ip4/127.0.0.1/tcp/5001" {
		t.Errorf("api_address = %s, want default", cfg.NodeDefaults.APIAddress)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BERTH_PEERS_REGISTRY_URL", "https://peers.example.org/list.txt")
	t.Setenv("BERTH_NODE_DEFAULTS_REPO_DIR", "/data/ipfs")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}

	if cfg.Peers.RegistryURL != "https://peers.example.org/list.txt" {
		t.Errorf("registry_url = %s, want env override", cfg.Peers.RegistryURL)
	}
	if cfg.NodeDefaults.RepoDir != "/data/ipfs" {
		t.Errorf("repo_dir = %s, want env override", cfg.NodeDefaults.RepoDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max connections", func(c *Config) { c.Database.MaxConnections = 0 }},
		{"tiny startup timeout", func(c *Config) { c.NodeDefaults.StartupTimeout = 10 * time.Millisecond }},
		{"tiny shutdown timeout", func(c *Config) { c.NodeDefaults.ShutdownTimeout = 0 }},
		{"tiny fetch timeout", func(c *Config) { c.Peers.FetchTimeout = 0 }},
		{"tiny refresh interval", func(c *Config) { c.UI.RefreshInterval = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

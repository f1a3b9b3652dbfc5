package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ndxgov/crypto"
)

const testKeystorePassphrase = "test-passphrase"

func TestLoadCreatesDefaultWithKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OperatorKeystorePath != filepath.Join(dir, "operator.keystore") {
		t.Fatalf("unexpected keystore path %q", cfg.OperatorKeystorePath)
	}
	if _, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, testKeystorePassphrase); err != nil {
		t.Fatalf("keystore unreadable: %v", err)
	}
	if cfg.ChainID != 1 || cfg.BlockIntervalSeconds != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), "OperatorKeystorePath") {
		t.Fatalf("persisted config missing keystore path:\n%s", raw)
	}

	again, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.OperatorKeystorePath != cfg.OperatorKeystorePath {
		t.Fatalf("keystore path changed on reload")
	}
}

func TestLoadFillsMissingKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "RPCAddress = \"127.0.0.1:9000\"\nDataDir = \"data\"\nChainID = 9\nBlockIntervalSeconds = 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" || cfg.ChainID != 9 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RPC.RequestsPerMinute != 600 {
		t.Fatalf("defaults should survive partial files, got %d", cfg.RPC.RequestsPerMinute)
	}
	if _, err := os.Stat(cfg.OperatorKeystorePath); err != nil {
		t.Fatalf("keystore not created: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("Bogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	t.Setenv("NDX_CHAIN_ID", "42")
	t.Setenv("NDX_RPC_ADDRESS", "0.0.0.0:7000")
	t.Setenv("NDX_INDEXER_DSN", "postgres://ndx@localhost/ndx")

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 42 {
		t.Fatalf("expected chain id override, got %d", cfg.ChainID)
	}
	if cfg.RPCAddress != "0.0.0.0:7000" {
		t.Fatalf("expected rpc override, got %q", cfg.RPCAddress)
	}
	if cfg.IndexerDSN != "postgres://ndx@localhost/ndx" {
		t.Fatalf("expected dsn override, got %q", cfg.IndexerDSN)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"chain id":       func(c *Config) { c.ChainID = 0 },
		"interval":       func(c *Config) { c.BlockIntervalSeconds = 0 },
		"long interval":  func(c *Config) { c.BlockIntervalSeconds = 601 },
		"data dir":       func(c *Config) { c.DataDir = "" },
		"rpc address":    func(c *Config) { c.RPCAddress = "nonsense" },
		"burst":          func(c *Config) { c.RPC.Burst = 0 },
		"short secret":   func(c *Config) { c.RPC.JWTSecret = "short" },
		"telemetry":      func(c *Config) { c.Telemetry.Traces = true },
		"log rotation":   func(c *Config) { c.Log.MaxBackups = -1 },
		"negative limit": func(c *Config) { c.RPC.RequestsPerMinute = -5 },
		"sample ratio":   func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

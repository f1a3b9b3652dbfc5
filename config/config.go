package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"ndxgov/crypto"
)

// EnvPrefix namespaces environment overrides, e.g. NDX_RPC_ADDRESS.
const EnvPrefix = "NDX"

type Config struct {
	RPCAddress           string    `toml:"RPCAddress" split_words:"true"`
	DataDir              string    `toml:"DataDir" split_words:"true"`
	GenesisFile          string    `toml:"GenesisFile" split_words:"true"`
	OperatorKeystorePath string    `toml:"OperatorKeystorePath" split_words:"true"`
	ChainID              uint64    `toml:"ChainID" split_words:"true"`
	BlockIntervalSeconds uint64    `toml:"BlockIntervalSeconds" split_words:"true"`
	IndexerDSN           string    `toml:"IndexerDSN" envconfig:"INDEXER_DSN"`
	Log                  Log       `toml:"Log"`
	RPC                  RPC       `toml:"RPC"`
	Telemetry            Telemetry `toml:"Telemetry"`
}

type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB" split_words:"true"`
	MaxBackups int    `toml:"MaxBackups" split_words:"true"`
}

// RPC controls authentication and throttling of the JSON-RPC server. An
// empty JWTSecret leaves ndx_sendTransaction unauthenticated.
type RPC struct {
	JWTSecret         string `toml:"JWTSecret" envconfig:"JWT_SECRET"`
	RequestsPerMinute int    `toml:"RequestsPerMinute" split_words:"true"`
	Burst             int    `toml:"Burst"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	Headers     string  `toml:"Headers"`
	SampleRatio float64 `toml:"SampleRatio" split_words:"true"`
}

type loadOptions struct {
	passphrase string
}

// Option customises Load.
type Option func(*loadOptions)

// WithKeystorePassphrase sets the passphrase used when Load has to create
// the operator keystore.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:           "127.0.0.1:8545",
		DataDir:              "./ndx-data",
		ChainID:              1,
		BlockIntervalSeconds: 5,
		IndexerDSN:           "ndx-index.db",
		Log:                  Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		RPC:                  RPC{RequestsPerMinute: 600, Burst: 60},
	}
}

// Load reads the configuration at path, creating a default file and an
// operator keystore when none exists, then applies NDX_* environment
// overrides.
func Load(path string, opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if cfg, err = createDefault(path, o.passphrase); err != nil {
			return nil, err
		}
	} else {
		cfg = Default()
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
		if err := ensureKeystore(path, cfg, o.passphrase); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config, passphrase string) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path, passphrase string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.OperatorKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}

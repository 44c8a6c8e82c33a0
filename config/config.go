package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"voucherchain/crypto"
)

// EnvPrefix prefixes every environment override, e.g. VOUCHER_RPC_ADDRESS.
const EnvPrefix = "VOUCHER"

// PassphraseEnv holds the passphrase of the node keystore.
const PassphraseEnv = "VOUCHER_KEY_PASSPHRASE"

type Config struct {
	RPCAddress           string `toml:"RPCAddress" envconfig:"RPC_ADDRESS"`
	DataDir              string `toml:"DataDir" envconfig:"DATA_DIR"`
	GenesisFile          string `toml:"GenesisFile" envconfig:"GENESIS_FILE"`
	KeystorePath         string `toml:"KeystorePath" envconfig:"KEYSTORE_PATH"`
	NetworkName          string `toml:"NetworkName" envconfig:"NETWORK_NAME"`
	ChainID              uint64 `toml:"ChainID" envconfig:"CHAIN_ID"`
	BlockIntervalSeconds int64  `toml:"BlockIntervalSeconds" envconfig:"BLOCK_INTERVAL_SECONDS"`
	Env                  string `toml:"Env" envconfig:"ENV"`

	Logging   Logging   `toml:"logging" envconfig:"LOG"`
	RateLimit RateLimit `toml:"rate_limit" envconfig:"RATE_LIMIT"`
	Auth      Auth      `toml:"auth" envconfig:"AUTH"`
	Indexer   Indexer   `toml:"indexer" envconfig:"INDEXER"`
	Telemetry Telemetry `toml:"telemetry" envconfig:"TELEMETRY"`
}

// Load reads the configuration at path, creating and persisting a default
// file (and node keystore) when it does not exist. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %q", path, undecoded[0].String())
		}
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BlockInterval is the wall-clock period between produced blocks.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "voucherchain-local"
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "dev"
	}
	if strings.TrimSpace(c.Indexer.Driver) == "" {
		c.Indexer.Driver = IndexerSQLite
	}
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if c.Indexer.Driver == IndexerSQLite && strings.TrimSpace(c.Indexer.DSN) == "" {
		c.Indexer.DSN = filepath.Join(c.DataDir, "events.db")
	}
	c.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter))
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = TelemetryNone
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "voucherd"
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.KeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if _, err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(PassphraseEnv)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.KeystorePath != keystorePath {
		cfg.KeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// Default returns the configuration written by createDefault.
func Default() *Config {
	return &Config{
		RPCAddress:           "127.0.0.1:8545",
		DataDir:              "./voucher-data",
		GenesisFile:          "genesis.yaml",
		NetworkName:          "voucherchain-local",
		ChainID:              1337,
		BlockIntervalSeconds: 30,
		Env:                  "dev",
		Logging:              Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		RateLimit:            RateLimit{RequestsPerMinute: 600, Burst: 50},
		Auth:                 Auth{Issuer: "voucherd", Audience: "voucherchain-rpc"},
		Indexer:              Indexer{Driver: IndexerSQLite},
		Telemetry:            Telemetry{Exporter: TelemetryNone, ServiceName: "voucherd"},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if _, err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(PassphraseEnv)); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.KeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
	return persist(path, cfg)
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
	return filepath.Join(dir, "node.keystore")
}

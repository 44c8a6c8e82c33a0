package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"voucherchain/crypto"
)

const testKeystorePassphrase = "test-passphrase"

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv(PassphraseEnv, testKeystorePassphrase)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "node.keystore"), cfg.KeystorePath)
	require.Equal(t, uint64(1337), cfg.ChainID)
	require.Equal(t, IndexerSQLite, cfg.Indexer.Driver)
	require.Equal(t, filepath.Join(cfg.DataDir, "events.db"), cfg.Indexer.DSN)

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = crypto.LoadFromKeystore(cfg.KeystorePath, testKeystorePassphrase)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "node.keystore")
	contents := `RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
GenesisFile = "genesis.yaml"
KeystorePath = "` + keystorePath + `"
NetworkName = "testnet"
ChainID = 42
BlockIntervalSeconds = 5

[logging]
Level = "debug"
File = "./node.log"

[rate_limit]
RequestsPerMinute = 120
Burst = 10

[auth]
HMACSecret = "secret"
Issuer = "issuer"

[indexer]
Driver = "Postgres"
DSN = "postgres://localhost/voucher"

[telemetry]
Exporter = "OTLP"
Endpoint = "collector:4318"
Insecure = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, uint64(42), cfg.ChainID)
	require.Equal(t, "testnet", cfg.NetworkName)
	require.Equal(t, int64(5), cfg.BlockIntervalSeconds)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, "secret", cfg.Auth.HMACSecret)
	require.Equal(t, IndexerPostgres, cfg.Indexer.Driver)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, Telemetry{Exporter: TelemetryOTLP, Endpoint: "collector:4318", Insecure: true, ServiceName: "voucherd"}, cfg.Telemetry)

	_, err = os.Stat(keystorePath)
	require.NoError(t, err, "missing keystore should be generated")
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	base := Default()
	base.KeystorePath = filepath.Join(dir, "node.keystore")
	require.NoError(t, Save(path, base))

	t.Setenv("VOUCHER_CHAIN_ID", "99")
	t.Setenv("VOUCHER_RPC_ADDRESS", "127.0.0.1:1")
	t.Setenv("VOUCHER_RATE_LIMIT_BURST", "3")
	t.Setenv("VOUCHER_AUTH_HMAC_SECRET", "from-env")
	t.Setenv("VOUCHER_LOG_LEVEL", "warn")
	t.Setenv("VOUCHER_TELEMETRY_EXPORTER", "stdout")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(99), cfg.ChainID)
	require.Equal(t, "127.0.0.1:1", cfg.RPCAddress)
	require.Equal(t, 3, cfg.RateLimit.Burst)
	require.Equal(t, 600, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, TelemetryStdout, cfg.Telemetry.Exporter)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ChainID = 1\nDataDir = \"d\"\nValidatorKey = \"x\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown field")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero chain id":     func(c *Config) { c.ChainID = 0 },
		"empty data dir":    func(c *Config) { c.DataDir = " " },
		"negative interval": func(c *Config) { c.BlockIntervalSeconds = -1 },
		"negative burst":    func(c *Config) { c.RateLimit.Burst = -1 },
		"unknown driver":    func(c *Config) { c.Indexer.Driver = "mysql" },
		"postgres no dsn":   func(c *Config) { c.Indexer = Indexer{Driver: IndexerPostgres} },
		"unknown exporter":  func(c *Config) { c.Telemetry.Exporter = "jaeger" },
		"otlp no endpoint":  func(c *Config) { c.Telemetry = Telemetry{Exporter: TelemetryOTLP} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Auth.HMACSecret = "abc"
	require.NoError(t, Save(path, cfg))

	var decoded Config
	_, err := toml.DecodeFile(path, &decoded)
	require.NoError(t, err)
	require.Equal(t, *cfg, decoded)
}

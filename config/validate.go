package config

import (
	"fmt"
	"strings"
)

const (
	IndexerSQLite   = "sqlite"
	IndexerPostgres = "postgres"

	TelemetryNone   = "none"
	TelemetryStdout = "stdout"
	TelemetryOTLP   = "otlp"
)

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if c.BlockIntervalSeconds < 0 {
		return fmt.Errorf("config: BlockIntervalSeconds must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
	case "", IndexerSQLite, IndexerPostgres:
	default:
		return fmt.Errorf("config: unknown indexer driver %q", c.Indexer.Driver)
	}
	if strings.EqualFold(c.Indexer.Driver, IndexerPostgres) && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("config: postgres indexer requires a DSN")
	}
	switch strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter)) {
	case "", TelemetryNone, TelemetryStdout:
	case TelemetryOTLP:
		if strings.TrimSpace(c.Telemetry.Endpoint) == "" {
			return fmt.Errorf("config: otlp telemetry requires an Endpoint")
		}
	default:
		return fmt.Errorf("config: unknown telemetry exporter %q", c.Telemetry.Exporter)
	}
	return nil
}

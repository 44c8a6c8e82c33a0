package config

// RateLimit bounds JSON-RPC calls per client address.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute" envconfig:"REQUESTS_PER_MINUTE"`
	Burst             int `toml:"Burst" envconfig:"BURST"`
}

// Auth configures bearer tokens accepted by mutating RPC methods. Tokens are
// HS256 JWTs whose subject is the caller's bech32 address.
type Auth struct {
	HMACSecret string `toml:"HMACSecret" envconfig:"HMAC_SECRET"`
	Issuer     string `toml:"Issuer" envconfig:"ISSUER"`
	Audience   string `toml:"Audience" envconfig:"AUDIENCE"`
}

// Indexer selects the database receiving committed events.
type Indexer struct {
	Driver string `toml:"Driver" envconfig:"DRIVER"` // sqlite or postgres
	DSN    string `toml:"DSN" envconfig:"DSN"`
}

// Logging controls the structured logger and its optional rotating file.
type Logging struct {
	Level      string `toml:"Level" envconfig:"LEVEL"`
	File       string `toml:"File" envconfig:"FILE"`
	MaxSizeMB  int    `toml:"MaxSizeMB" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"MaxBackups" envconfig:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"MaxAgeDays" envconfig:"MAX_AGE_DAYS"`
}

// Telemetry selects where OpenTelemetry spans are exported.
type Telemetry struct {
	Exporter    string `toml:"Exporter" envconfig:"EXPORTER"` // none, stdout or otlp
	Endpoint    string `toml:"Endpoint" envconfig:"ENDPOINT"` // host:port of an OTLP/HTTP collector
	Insecure    bool   `toml:"Insecure" envconfig:"INSECURE"`
	ServiceName string `toml:"ServiceName" envconfig:"SERVICE_NAME"`
}

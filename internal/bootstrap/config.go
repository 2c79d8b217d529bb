// Package bootstrap loads the process-lifetime settings a host wires
// the core up with: CSMS URL, filesystem root, connector topology,
// voltage, and credentials. This is distinct from internal/ocppconfig,
// which is the CS-mutable runtime configuration registry.
package bootstrap

import (
	"time"
)

// Config is the root bootstrap configuration document.
type Config struct {
	CSMS       CSMSConfig       `mapstructure:"csms"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Station    StationConfig    `mapstructure:"station"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// CSMSConfig holds the upstream OCPP server connection settings.
type CSMSConfig struct {
	URL                  string        `mapstructure:"url"`
	StationID            string        `mapstructure:"station_id"`
	BasicAuthUser        string        `mapstructure:"basic_auth_user"`
	BasicAuthPassword    string        `mapstructure:"basic_auth_password"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	TLSInsecureSkipVerify bool         `mapstructure:"tls_insecure_skip_verify"`
}

// StorageConfig holds the filesystem adapter's root directory.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// StationConfig holds the EVSE's physical topology.
type StationConfig struct {
	ConnectorCount int     `mapstructure:"connector_count"`
	VoltageV       float64 `mapstructure:"voltage_v"`
	Vendor         string  `mapstructure:"vendor"`
	Model          string  `mapstructure:"model"`
}

// LoggingConfig holds the slog level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds the optional MongoDB mirror's connection settings.
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URI               string        `mapstructure:"uri"`
	Database          string        `mapstructure:"database"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// applyDefaults fills zero-valued fields with sane defaults, kept
// explicit here since bootstrap has no struct-tag defaults of its own.
func (c *Config) applyDefaults() {
	if c.CSMS.ConnectTimeout == 0 {
		c.CSMS.ConnectTimeout = 10 * time.Second
	}
	if c.CSMS.ReconnectBackoff == 0 {
		c.CSMS.ReconnectBackoff = time.Second
	}
	if c.CSMS.MaxReconnectAttempts == 0 {
		c.CSMS.MaxReconnectAttempts = -1 // unlimited
	}
	if c.Station.ConnectorCount == 0 {
		c.Station.ConnectorCount = 1
	}
	if c.Station.VoltageV == 0 {
		c.Station.VoltageV = 230
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Telemetry.ConnectionTimeout == 0 {
		c.Telemetry.ConnectionTimeout = 5 * time.Second
	}
}

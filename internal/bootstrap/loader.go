package bootstrap

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the bootstrap configuration from configPath, falling back
// to environment variables only when no config file is found.
func Load(configPath string) (*Config, error) {
	var cfg Config

	path := configPath
	if path == "" {
		for _, p := range []string{"./configs/config.yaml", "./config.yaml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("bootstrap: read config file %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("bootstrap: read environment config: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: invalid configuration: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.CSMS.URL == "" {
		return fmt.Errorf("csms.url is required")
	}
	if cfg.CSMS.StationID == "" {
		return fmt.Errorf("csms.station_id is required")
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if cfg.Station.ConnectorCount < 1 {
		return fmt.Errorf("station.connector_count must be >= 1")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}
	return nil
}

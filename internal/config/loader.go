package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "stockcouncil.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "STOCKCOUNCIL_PORT")
	setString(&cfg.Server.CORSOrigin, "STOCKCOUNCIL_CORS_ORIGIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "STOCKCOUNCIL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "STOCKCOUNCIL_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "STOCKCOUNCIL_LOG_ASYNC")
	setInt64(&cfg.Cache.MaxSizeMB, "STOCKCOUNCIL_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "STOCKCOUNCIL_CACHE_TTL")
	setDuration(&cfg.Analysis.WorkerTimeout, "STOCKCOUNCIL_WORKER_TIMEOUT")
	setDuration(&cfg.Analysis.PhaseCeiling, "STOCKCOUNCIL_PHASE_CEILING")
	setInt(&cfg.Analysis.BusBuffer, "STOCKCOUNCIL_BUS_BUFFER")
	setInt(&cfg.Analysis.MaxHistory, "STOCKCOUNCIL_MAX_HISTORY")
	setUint64(&cfg.Retry.Attempts, "STOCKCOUNCIL_RETRY_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "STOCKCOUNCIL_RETRY_BASE_DELAY")
	setInt(&cfg.Breaker.MaxFailures, "STOCKCOUNCIL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "STOCKCOUNCIL_BREAKER_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Analysis.WorkerTimeout <= 0 {
		return errors.New("analysis.worker_timeout must be positive")
	}
	if cfg.Analysis.PhaseCeiling <= 0 {
		return errors.New("analysis.phase_ceiling must be positive")
	}
	if cfg.Analysis.BusBuffer < 1 {
		return errors.New("analysis.bus_buffer must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Package config provides hierarchical configuration loading for
// StockCouncil. Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the analysis service.
type Config struct {
	Server   Server   `yaml:"server"`
	NATS     NATS     `yaml:"nats"`
	Logging  Logging  `yaml:"logging"`
	Cache    Cache    `yaml:"cache"`
	Analysis Analysis `yaml:"analysis"`
	Retry    Retry    `yaml:"retry"`
	Breaker  Breaker  `yaml:"breaker"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// NATS holds the progress mirror broker configuration. An empty URL
// disables the mirror.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Cache holds the session snapshot cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Analysis holds scheduler and conversation runner configuration.
type Analysis struct {
	// WorkerTimeout bounds a single worker invocation.
	WorkerTimeout time.Duration `yaml:"worker_timeout"`
	// PhaseCeiling is the default wall-clock bound for one phase.
	PhaseCeiling time.Duration `yaml:"phase_ceiling"`
	// BusBuffer is the per-subscriber progress event buffer.
	BusBuffer int `yaml:"bus_buffer"`
	// MaxHistory caps the sessions reported by the list endpoint (0 = all).
	MaxHistory int `yaml:"max_history"`
}

// Retry holds worker backend retry configuration (applied by the worker
// factory, never by the orchestration core).
type Retry struct {
	Attempts  uint64        `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// Breaker holds circuit breaker configuration for worker backends.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		NATS: NATS{
			URL: "", // mirror disabled unless configured
		},
		Logging: Logging{
			Level:   "info",
			Service: "stockcouncil",
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       time.Hour,
		},
		Analysis: Analysis{
			WorkerTimeout: 2 * time.Minute,
			PhaseCeiling:  40 * time.Minute,
			BusBuffer:     64,
			MaxHistory:    0,
		},
		Retry: Retry{
			Attempts:  3,
			BaseDelay: 500 * time.Millisecond,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}

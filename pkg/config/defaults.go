package config

import (
	"strings"

	"github.com/marmos91/cephodm/pkg/metrics"
	"github.com/marmos91/cephodm/pkg/persister"
	"github.com/marmos91/cephodm/pkg/storage"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Backend-specific defaults are left to the backend constructors, except
// for the sample values written by InitConfig.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStorageDefaults(&cfg.Storage)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyMetricsDefaults(&cfg.Metrics)
	applyQueryDefaults(&cfg.Query)
	applyPersisterDefaults(&cfg.Persister)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
	if _, ok := cfg.S3["max_retries"]; !ok {
		cfg.S3["max_retries"] = 10
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "/tmp/cephodm-badger"
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	// Unthrottled unless configured.
	if cfg.RequestsPerSecond > 0 && cfg.Burst == 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = metrics.DefaultPort
	}
}

func applyQueryDefaults(cfg *QueryConfig) {
	if cfg.MaxKeys == 0 {
		cfg.MaxKeys = storage.DefaultMaxKeys
	}
}

func applyPersisterDefaults(cfg *PersisterConfig) {
	if len(cfg.FileRequiredProperties) == 0 {
		cfg.FileRequiredProperties = append([]string(nil), persister.DefaultFileRequiredProperties...)
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Used to generate sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

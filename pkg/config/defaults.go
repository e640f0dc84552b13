package config

import (
	"github.com/dittopm/pmstore/internal/bytesize"
	"github.com/dittopm/pmstore/pkg/palloc"
)

// ApplyDefaults fills unset fields with sensible defaults, mirroring the
// precedence rule: zero values are replaced, explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyHeapDefaults(&cfg.Heap)
	applyRedoDefaults(&cfg.Redo)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyHeapDefaults(cfg *HeapConfig) {
	if cfg.Path == "" {
		cfg.Path = "/var/lib/pmstore/heap.pm"
	}
	if cfg.Size == 0 {
		cfg.Size = bytesize.ByteSize(bytesize.GiB)
	}
}

func applyRedoDefaults(cfg *RedoConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = palloc.DefaultRedoCapacity
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with every default applied. Useful for
// generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

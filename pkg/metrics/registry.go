// Package metrics provides the process-wide Prometheus registry gate.
// Collectors never touch *prometheus.Registry directly; they go through
// IsEnabled/GetRegistry so a disabled metrics configuration costs nothing
// beyond a single bool check.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry enables metrics collection and creates the process-wide
// registry. Safe to call once at startup; a second call replaces the
// registry (used by tests that need an isolated registry per case).
func InitRegistry() *prometheus.Registry {
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// Disable turns metrics collection off; subsequent NewXMetrics calls
// return nil, nil-safe collectors.
func Disable() {
	enabled = false
	registry = nil
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConfigMetrics reports how a component's environment configuration loaded:
//
//	{prefix}_config_load_timestamp
//	{prefix}_config_fallbacks_total{field}
//	{prefix}_config_fallback_active
//
// Registration is global, so each prefix may be used once per process.
type ConfigMetrics struct {
	LoadTimestamp  prometheus.Gauge
	FallbacksTotal *prometheus.CounterVec
	FallbackActive prometheus.Gauge
}

// NewConfigMetrics registers the configuration metrics under prefix.
func NewConfigMetrics(prefix string) *ConfigMetrics {
	return &ConfigMetrics{
		LoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_config_load_timestamp",
			Help: "Unix time the configuration was last loaded",
		}),
		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_config_fallbacks_total",
			Help: "Invalid configuration values replaced by their default, by field",
		}, []string{"field"}),
		FallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_config_fallback_active",
			Help: "1 if the loaded configuration uses any fallback value",
		}),
	}
}

// RecordFallback counts a default substituted for field.
func (m *ConfigMetrics) RecordFallback(field string) {
	m.FallbacksTotal.WithLabelValues(field).Inc()
}

// RecordLoaded stamps the load time and whether any fallback was used.
func (m *ConfigMetrics) RecordLoaded(usedFallback bool) {
	m.LoadTimestamp.SetToCurrentTime()
	if usedFallback {
		m.FallbackActive.Set(1)
		return
	}
	m.FallbackActive.Set(0)
}

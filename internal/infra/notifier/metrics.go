package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var alertsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "delivery_alerts_total",
		Help: "Total number of failure alerts by channel and result",
	},
	[]string{"channel", "result"},
)

// RecordAlert counts one alert outcome ("success" or "failure") for channel.
func RecordAlert(channel, result string) {
	alertsTotal.WithLabelValues(channel, result).Inc()
}

package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	clientsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "waycore",
			Subsystem: "session",
			Name:      "clients_active",
			Help:      "Currently connected clients.",
		},
	)
	clientsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "waycore",
			Subsystem: "session",
			Name:      "clients_total",
			Help:      "Client connections accepted since start.",
		},
	)
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waycore",
			Subsystem: "protocol",
			Name:      "requests_total",
			Help:      "Dispatched client requests.",
		},
		[]string{"interface", "message"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "waycore",
			Subsystem: "protocol",
			Name:      "request_duration_seconds",
			Help:      "Request dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"interface", "message"},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waycore",
			Subsystem: "protocol",
			Name:      "events_total",
			Help:      "Events queued for delivery to clients.",
		},
		[]string{"interface", "message"},
	)
	protocolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waycore",
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Fatal protocol errors posted to clients.",
		},
		[]string{"interface", "code"},
	)
	bindsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waycore",
			Subsystem: "protocol",
			Name:      "binds_total",
			Help:      "Registry binds by interface.",
		},
		[]string{"interface"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			clientsActive,
			clientsTotal,
			requestsTotal,
			requestDuration,
			eventsTotal,
			protocolErrorsTotal,
			bindsTotal,
		)
	})
}

func RecordClientConnect() {
	RegisterMetrics()
	clientsTotal.Inc()
	clientsActive.Inc()
}

func RecordClientDisconnect() {
	RegisterMetrics()
	clientsActive.Dec()
}

func RecordRequest(iface, message string, duration time.Duration) {
	RegisterMetrics()
	requestsTotal.WithLabelValues(iface, message).Inc()
	requestDuration.WithLabelValues(iface, message).Observe(duration.Seconds())
}

func RecordEvent(iface, message string) {
	RegisterMetrics()
	eventsTotal.WithLabelValues(iface, message).Inc()
}

func RecordProtocolError(iface string, code uint32) {
	RegisterMetrics()
	if iface == "" {
		iface = "unknown"
	}
	protocolErrorsTotal.WithLabelValues(iface, strconv.FormatUint(uint64(code), 10)).Inc()
}

func RecordBind(iface string) {
	RegisterMetrics()
	bindsTotal.WithLabelValues(iface).Inc()
}

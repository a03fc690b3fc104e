// Package metrics holds the process-wide Prometheus collectors.
//
// Label values are bounded: addresses come from the fixed protocol table and
// reasons from a short fixed list, never from peer-supplied strings.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulation
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playround_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033},
	})

	markerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playround_markers",
		Help: "Live markers travelling on paths",
	})

	plucksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playround_plucks_total",
		Help: "String plucks",
	}, []string{"source"}) // "marker", "cursor"

	objectCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playround_objects",
		Help: "Objects in the local registry",
	})

	orphanCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playround_orphans",
		Help: "Objects waiting for their parent",
	})

	soundSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playround_sound_sources",
		Help: "Sound sources on the audio side",
	})

	// Replication
	inboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playround_inbound_messages_total",
		Help: "Decoded inbound protocol messages",
	}, []string{"address"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playround_dropped_datagrams_total",
		Help: "Inbound datagrams dropped",
	}, []string{"reason"}) // "malformed", "unknown_address", "arguments", "rate_limit", "invalid", "panic"

	outboundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playround_outbound_messages_total",
		Help: "Protocol messages sent",
	})

	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playround_send_errors_total",
		Help: "Protocol messages that failed to send",
	})

	peerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playround_peers",
		Help: "Known peers",
	})

	// Journal
	journalTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playround_journal_events_total",
		Help: "Events written to the journal",
	})

	journalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playround_journal_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// HTTP
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playround_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // "rate_limit", "origin", "ws_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playround_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playround_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playround_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playround_websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// RecordTick records tick timing and the live marker count
func RecordTick(duration time.Duration, markers int) {
	tickDuration.Observe(duration.Seconds())
	markerCount.Set(float64(markers))
}

// RecordPlucks adds n plucks from source ("marker" or "cursor")
func RecordPlucks(source string, n int) {
	if n > 0 {
		plucksTotal.WithLabelValues(source).Add(float64(n))
	}
}

// UpdateScene updates registry gauges
func UpdateScene(objects, orphans int) {
	objectCount.Set(float64(objects))
	orphanCount.Set(float64(orphans))
}

// UpdateSoundSources updates the audio-side source gauge
func UpdateSoundSources(n int) {
	soundSources.Set(float64(n))
}

// RecordInbound counts one decoded message by address pattern
func RecordInbound(address string) {
	inboundTotal.WithLabelValues(address).Inc()
}

// RecordDropped counts one dropped datagram
func RecordDropped(reason string) {
	droppedTotal.WithLabelValues(reason).Inc()
}

// RecordSend counts one outbound message
func RecordSend(err error) {
	outboundTotal.Inc()
	if err != nil {
		sendErrors.Inc()
	}
}

// UpdatePeers updates the peer gauge
func UpdatePeers(n int) {
	peerCount.Set(float64(n))
}

// RecordJournal counts journal writes and drops
func RecordJournal(written bool) {
	if written {
		journalTotal.Inc()
		return
	}
	journalDropped.Inc()
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

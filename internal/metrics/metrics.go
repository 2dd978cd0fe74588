package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ServerOnline mirrors the connectivity monitor's last evaluation.
	ServerOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gnet_server_online",
		Help: "Connectivity status as seen by the client (0 = offline, 1 = online)",
	})

	ConnectivityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnet_connectivity_checks_total",
		Help: "Number of connectivity evaluations by outcome",
	}, []string{"result"})
)

var (
	PointsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gnet_points_total",
		Help: "Number of points in the current point list",
	})

	PointSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnet_point_syncs_total",
		Help: "Number of point list syncs by outcome",
	}, []string{"result"})
)

var (
	PendingRatings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gnet_pending_ratings",
		Help: "Number of rating submissions waiting for connectivity",
	})

	RatingSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnet_rating_submissions_total",
		Help: "Number of rating submissions by outcome (ok, failed, queued)",
	}, []string{"result"})
)

var (
	MapCacheAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gnet_map_cache_age_seconds",
		Help: "Age of the cached map page in seconds (-1 when no page is cached)",
	})

	MapCacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnet_map_cache_refresh_total",
		Help: "Number of map page refresh attempts by result",
	}, []string{"result"})
)

var (
	BridgeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnet_bridge_events_total",
		Help: "Number of messages received from the embedded map content by type",
	}, []string{"type"})

	BridgeDirectives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnet_bridge_directives_total",
		Help: "Number of scripts sent to the embedded map content by directive",
	}, []string{"directive"})
)

var (
	// OutgoingLatency tracks every request made through the pooled client.
	OutgoingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnet_outgoing_request_duration_seconds",
		Help:    "Latency of outgoing HTTP requests to the remote service",
		Buckets: prometheus.DefBuckets,
	}, []string{"url", "method", "status"})
)

// BoolToFloat converts a status flag into a gauge value.
func BoolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks live transport sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatual_active_connections",
		Help: "Number of live websocket connections.",
	})

	// OnlineUsers tracks users with at least one live connection.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatual_online_users",
		Help: "Number of users with at least one live connection.",
	})

	// FramesTotal counts inbound frames by type.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatual_frames_total",
		Help: "Inbound frames processed, by frame type.",
	}, []string{"type"})

	// BroadcastsTotal counts fanout operations.
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatual_broadcasts_total",
		Help: "Room and user broadcast operations performed.",
	})

	// ReapedConnectionsTotal counts heartbeat-initiated teardowns.
	ReapedConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatual_reaped_connections_total",
		Help: "Connections removed by the heartbeat reaper.",
	})

	// StoreErrorsTotal counts persistence failures surfaced by the engine.
	StoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatual_store_errors_total",
		Help: "Persistence call failures observed by the engine.",
	})
)

// Handler exposes Prometheus metrics, mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

package server

import (
	"context"
	"time"

	"github.com/joshyvodetaene/chatual-sub000/internal/metrics"
)

// HeartbeatMonitor drives the probe/reap cycle on its own schedule,
// independent of message traffic. Each cycle optimistically flags every
// open connection not-alive and pings it; connections answer with a
// transport pong or any application frame. A connection is reaped only
// when its transport is gone, or when the probe went unanswered AND it
// has been silent past the reap timeout — one missed pong alone never
// reaps, which keeps slow mobile links connected.
type HeartbeatMonitor struct {
	engine   *Engine
	interval time.Duration
}

// NewHeartbeatMonitor wires a monitor to the engine.
func NewHeartbeatMonitor(engine *Engine) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		engine:   engine,
		interval: engine.cfg.Heartbeat.Interval,
	}
}

// Run executes probe cycles until the context is canceled.
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.engine.probeCycle()
		}
	}
}

// probeCycle reaps dead connections through the one teardown path, then
// probes the survivors and reconciles every room to bound drift.
func (e *Engine) probeCycle() {
	now := time.Now()

	e.mu.Lock()
	var reap []string
	var probe []*Conn
	for _, c := range e.registry.AllConnections() {
		if c.reapable(now, e.cfg.Heartbeat.ReapTimeout) {
			reap = append(reap, c.id)
			continue
		}
		// Optimistic: not alive until the pong (or any frame) lands.
		c.alive = false
		probe = append(probe, c)
	}
	rooms := e.presence.Rooms()
	e.mu.Unlock()

	for _, connID := range reap {
		metrics.ReapedConnectionsTotal.Inc()
		e.CloseConnection(connID, "heartbeat timeout")
	}

	for _, c := range probe {
		if err := c.peer.Ping(); err != nil {
			e.log.Debug("probe send failed", "conn", c.id, "err", err)
		}
	}

	// Reaping can only shrink rooms, so the pre-reap room list covers
	// everything that needs a reconciliation pass.
	for _, roomID := range rooms {
		e.Reconcile(roomID)
	}

	if len(reap) > 0 {
		e.log.Info("heartbeat cycle", "reaped", len(reap), "probed", len(probe))
	}
}

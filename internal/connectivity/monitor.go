// Package connectivity decides whether the client is ONLINE or OFFLINE.
//
// A client is online only when the device reports a network connection AND a
// liveness probe against the remote service succeeds. The state is
// re-evaluated on a fixed interval and every evaluation is reported, changed
// or not.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mapclient.gnet.app/internal/metrics"
)

// DefaultInterval is the polling period between evaluations.
const DefaultInterval = 30 * time.Second

// NetworkState reports device-level connectivity.
type NetworkState interface {
	IsConnected(ctx context.Context) (bool, error)
}

// Prober checks that the remote service answers.
type Prober interface {
	Ping(ctx context.Context) bool
}

// Monitor evaluates connectivity and remembers the last result.
type Monitor struct {
	network  NetworkState
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	online    bool
	evaluated bool
}

// NewMonitor creates a Monitor. A non-positive interval falls back to DefaultInterval.
func NewMonitor(network NetworkState, prober Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		network:  network,
		prober:   prober,
		interval: interval,
		logger:   logger,
	}
}

// Evaluate runs one check. The probe is skipped when the device is offline.
func (m *Monitor) Evaluate(ctx context.Context) bool {
	online := false
	connected, err := m.network.IsConnected(ctx)
	switch {
	case err != nil:
		m.logger.Warn("Device network state unavailable", "error", err)
	case connected:
		online = m.prober.Ping(ctx)
	}

	m.mu.Lock()
	changed := !m.evaluated || m.online != online
	m.online = online
	m.evaluated = true
	m.mu.Unlock()

	if changed {
		m.logger.Info("Connectivity changed", "online", online, "device_connected", connected)
	}
	metrics.ServerOnline.Set(metrics.BoolToFloat(online))
	if online {
		metrics.ConnectivityChecks.WithLabelValues("online").Inc()
	} else {
		metrics.ConnectivityChecks.WithLabelValues("offline").Inc()
	}
	return online
}

// Status returns the last evaluated state. known is false before the first evaluation.
func (m *Monitor) Status() (online bool, known bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online, m.evaluated
}

// Start evaluates immediately and then on every interval, passing each
// result to callback. The returned stop function halts future evaluations
// and suppresses delivery of one already in flight. It is safe to call
// stop more than once.
func (m *Monitor) Start(ctx context.Context, callback func(online bool)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var stopped atomic.Bool

	run := func() {
		online := m.Evaluate(ctx)
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		callback(online)
	}

	go func() {
		run()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			cancel()
		})
	}
}

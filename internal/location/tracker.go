// Package location forwards live position updates from the device to the
// parts of the client that follow the user.
package location

import (
	"context"
	"log/slog"
	"sync"

	"mapclient.gnet.app/internal/models"
)

// Subscription is an active position watch.
type Subscription interface {
	Remove()
}

// PositionSource is the device location service.
type PositionSource interface {
	RequestPermission(ctx context.Context) (bool, error)
	// Watch starts a continuous high-accuracy watch.
	Watch(ctx context.Context, onUpdate func(models.LatLng)) (Subscription, error)
}

// Tracker holds at most one watch and fans its updates out to consumers.
type Tracker struct {
	src    PositionSource
	logger *slog.Logger

	mu        sync.Mutex
	consumers []func(models.LatLng)
	sub       Subscription
	started   bool
	last      *models.LatLng

	// deliverMu is held while consumers run so Stop can wait out an
	// in-flight update. Consumers must not call Stop.
	deliverMu sync.Mutex
	stopped   bool
}

func NewTracker(src PositionSource, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{src: src, logger: logger}
}

// OnUpdate registers a consumer. Register consumers before Start.
func (t *Tracker) OnUpdate(fn func(models.LatLng)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consumers = append(t.consumers, fn)
}

// Last returns the latest position received.
func (t *Tracker) Last() (models.LatLng, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return models.LatLng{}, false
	}
	return *t.last, true
}

// Start asks for permission and opens the watch. A denied permission or a
// failing source leaves the tracker inert; it reports whether tracking runs.
func (t *Tracker) Start(ctx context.Context) bool {
	t.mu.Lock()
	if t.started {
		running := t.sub != nil
		t.mu.Unlock()
		return running
	}
	t.started = true
	t.mu.Unlock()

	granted, err := t.src.RequestPermission(ctx)
	if err != nil {
		t.logger.Warn("Location permission request failed", "error", err)
		return false
	}
	if !granted {
		t.logger.Warn("Location permission denied")
		return false
	}

	sub, err := t.src.Watch(ctx, t.deliver)
	if err != nil {
		t.logger.Warn("Failed to start location watch", "error", err)
		return false
	}

	// stopped is checked and sub published under one deliverMu hold.
	t.deliverMu.Lock()
	if t.stopped {
		t.deliverMu.Unlock()
		sub.Remove()
		return false
	}
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	t.deliverMu.Unlock()

	t.logger.Info("Location tracking started")
	return true
}

func (t *Tracker) deliver(ll models.LatLng) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	if t.stopped {
		return
	}

	t.mu.Lock()
	t.last = &ll
	consumers := append(([]func(models.LatLng))(nil), t.consumers...)
	t.mu.Unlock()

	for _, fn := range consumers {
		fn(ll)
	}
}

// Stop removes the watch. It is idempotent, and no update is delivered
// after it returns.
func (t *Tracker) Stop() {
	t.deliverMu.Lock()
	t.stopped = true
	t.deliverMu.Unlock()

	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Remove()
		t.logger.Info("Location tracking stopped")
	}
}

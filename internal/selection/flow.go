// Package selection resolves map taps to points, tracks the point being
// inspected or navigated to and submits ratings.
package selection

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"mapclient.gnet.app/internal/geo"
	"mapclient.gnet.app/internal/metrics"
	"mapclient.gnet.app/internal/models"
)

// DefaultTapThresholdKm is the largest tap-to-point distance that still
// selects the point.
const DefaultTapThresholdKm = 0.05

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrRatingQueued  = errors.New("rating could not be sent and was queued until the client is back online")
	ErrRatingFailed  = errors.New("rating could not be sent")
)

// Camera is paused while the user looks at a point.
type Camera interface {
	Pause()
}

// Highlighter marks a point on the map.
type Highlighter interface {
	Highlight(ll models.LatLng)
}

type Submitter interface {
	SubmitRating(ctx context.Context, pointID string, rating int) bool
}

type Enqueuer interface {
	Enqueue(ctx context.Context, pointID string, rating int) error
}

// Deps are the collaborators of a Flow.
type Deps struct {
	Points       func() []models.Point
	UserLocation func() (models.LatLng, bool)
	Online       func() bool
	Resync       func(ctx context.Context) error

	Camera Camera
	Map    Highlighter
	Remote Submitter
	Queue  Enqueuer
}

// Indicator points from the user to the navigation target.
type Indicator struct {
	Target     models.Point `json:"target"`
	DistanceKm float64      `json:"distanceKm"`
	Bearing    float64      `json:"bearing"`
}

// Flow is the selection state machine. It is safe for concurrent use.
type Flow struct {
	deps        Deps
	thresholdKm float64
	logger      *slog.Logger

	mu         sync.RWMutex
	selected   *models.Point
	navigating *models.Point
}

// NewFlow creates a flow. A non-positive thresholdKm selects DefaultTapThresholdKm.
func NewFlow(deps Deps, thresholdKm float64, logger *slog.Logger) *Flow {
	if thresholdKm <= 0 {
		thresholdKm = DefaultTapThresholdKm
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{deps: deps, thresholdKm: thresholdKm, logger: logger}
}

// HandlePointClick opens the point nearest to the tap when it is within the
// threshold. Taps that miss every point are ignored.
func (f *Flow) HandlePointClick(lat, lon float64) (models.Point, bool) {
	if !geo.IsValidLatLon(lat, lon) {
		f.logger.Debug("Ignoring tap with invalid coordinates", "lat", lat, "lon", lon)
		return models.Point{}, false
	}

	p, dist, ok := geo.Nearest(f.deps.Points(), models.LatLng{Latitude: lat, Longitude: lon})
	if !ok || dist > f.thresholdKm {
		return models.Point{}, false
	}
	f.open(p)
	return p, true
}

// OpenNearestToUser opens the point nearest to the user, however far away.
func (f *Flow) OpenNearestToUser() (models.Point, bool) {
	user, ok := f.deps.UserLocation()
	if !ok {
		return models.Point{}, false
	}
	p, _, ok := geo.Nearest(f.deps.Points(), user)
	if !ok {
		return models.Point{}, false
	}
	f.open(p)
	return p, true
}

func (f *Flow) open(p models.Point) {
	f.mu.Lock()
	f.selected = &p
	f.mu.Unlock()

	f.deps.Map.Highlight(p.Location())
	f.deps.Camera.Pause()
	f.logger.Debug("Point selected", "point_id", p.ID)
}

// Close dismisses the detail view.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = nil
}

// Navigate makes p the indicator target and closes the detail view.
func (f *Flow) Navigate(p models.Point) {
	f.mu.Lock()
	f.navigating = &p
	f.selected = nil
	f.mu.Unlock()

	f.deps.Map.Highlight(p.Location())
}

func (f *Flow) Selected() (models.Point, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.selected == nil {
		return models.Point{}, false
	}
	return *f.selected, true
}

func (f *Flow) Navigating() (models.Point, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.navigating == nil {
		return models.Point{}, false
	}
	return *f.navigating, true
}

// Indicator returns distance and bearing from user to the navigating point,
// or to the nearest point when nothing is being navigated to.
func (f *Flow) Indicator(user models.LatLng) (Indicator, bool) {
	target, ok := f.Navigating()
	if !ok {
		target, _, ok = geo.Nearest(f.deps.Points(), user)
		if !ok {
			return Indicator{}, false
		}
	}
	return Indicator{
		Target:     target,
		DistanceKm: geo.DistanceKm(user, target.Location()),
		Bearing:    geo.Bearing(user, target.Location()),
	}, true
}

// Rate submits a rating. A delivered rating triggers a resync of the point
// list. An undelivered one is queued when offline (ErrRatingQueued) and
// reported as ErrRatingFailed when online.
func (f *Flow) Rate(ctx context.Context, pointID string, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	f.warnPlaceholder(pointID)

	if f.deps.Remote.SubmitRating(ctx, pointID, rating) {
		metrics.RatingSubmissions.WithLabelValues("ok").Inc()
		if err := f.deps.Resync(ctx); err != nil {
			f.logger.Warn("Point resync after rating failed", "error", err)
		}
		return nil
	}

	if f.deps.Online() {
		metrics.RatingSubmissions.WithLabelValues("failed").Inc()
		return ErrRatingFailed
	}

	if err := f.deps.Queue.Enqueue(ctx, pointID, rating); err != nil {
		metrics.RatingSubmissions.WithLabelValues("failed").Inc()
		f.logger.Error("Failed to queue rating", "point_id", pointID, "error", err)
		return errors.Join(ErrRatingFailed, err)
	}
	metrics.RatingSubmissions.WithLabelValues("queued").Inc()
	return ErrRatingQueued
}

func (f *Flow) warnPlaceholder(pointID string) {
	for _, p := range f.deps.Points() {
		if p.ID == pointID && p.PlaceholderID {
			f.logger.Warn("Rating a point with a locally generated id; it may not match after the next sync", "point_id", pointID)
			return
		}
	}
}

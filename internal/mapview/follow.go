package mapview

import (
	"log/slog"
	"sync"
	"time"

	"mapclient.gnet.app/internal/bridge"
	"mapclient.gnet.app/internal/models"
)

// DefaultFollowPause is how long the camera stops following the user after
// an interaction.
const DefaultFollowPause = 12 * time.Second

type FollowState string

const (
	FollowUninitialized FollowState = "UNINITIALIZED"
	FollowFollowing     FollowState = "FOLLOWING"
	FollowPaused        FollowState = "PAUSED"
)

// Follow keeps the map camera on the user. Nothing is moved before the
// content reports ready; the first location after that sets the initial
// view at max zoom, later ones pan. Interactions pause following and every
// new interaction re-arms the pause.
type Follow struct {
	dir    *bridge.Directives
	pause  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	page    string
	ready   bool
	hasView bool
	paused  bool
	until   time.Time
	timer   *time.Timer
	gen     uint64
	last    *models.LatLng
	zoom    float64
	maxZoom float64
}

func NewFollow(dir *bridge.Directives, pause time.Duration, logger *slog.Logger) *Follow {
	if pause <= 0 {
		pause = DefaultFollowPause
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Follow{
		dir:    dir,
		pause:  pause,
		logger: logger,
		zoom:   ZoomRef,
	}
}

// State returns the current follow state.
func (f *Follow) State() FollowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Follow) stateLocked() FollowState {
	switch {
	case f.paused:
		return FollowPaused
	case !f.hasView:
		return FollowUninitialized
	default:
		return FollowFollowing
	}
}

// PausedUntil returns when following resumes. It is zero unless paused.
func (f *Follow) PausedUntil() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paused {
		return time.Time{}
	}
	return f.until
}

// LastLocation returns the latest user location seen.
func (f *Follow) LastLocation() (models.LatLng, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return models.LatLng{}, false
	}
	return *f.last, true
}

// Loaded handles the start of a page load. A page not seen before resets the
// camera state and waits for Ready; a page whose map already reported ready
// keeps it, since the two events of one document may arrive in either order.
// Only the user marker is replayed.
func (f *Follow) Loaded(page string) {
	f.mu.Lock()
	if page == "" || page != f.page {
		f.page = page
		f.ready = false
		f.hasView = false
	}
	last := f.last
	f.mu.Unlock()

	if last != nil {
		f.dir.SetUserLocation(*last)
	}
}

// Ready marks the map of page as found, records the zoom levels it reported
// and replays the last location. A Ready for a page not yet announced by
// Loaded starts that page's camera state.
func (f *Follow) Ready(page string, zoom, maxZoom *float64) {
	f.mu.Lock()
	if page != "" && page != f.page {
		f.page = page
		f.hasView = false
	}
	f.ready = true
	if zoom != nil {
		f.zoom = *zoom
	}
	if maxZoom != nil {
		f.maxZoom = *maxZoom
	}
	z := f.zoom
	f.mu.Unlock()

	f.ApplyZoom(z)
	if ll, ok := f.LastLocation(); ok {
		f.OnLocation(ll)
	}
}

// OnLocation updates the user marker and moves the camera when following.
func (f *Follow) OnLocation(ll models.LatLng) {
	f.mu.Lock()
	f.last = &ll
	if !f.ready {
		f.mu.Unlock()
		return
	}
	paused, hasView, maxZoom := f.paused, f.hasView, f.maxZoom
	if !paused && !hasView {
		f.hasView = true
	}
	f.mu.Unlock()

	f.dir.SetUserLocation(ll)
	switch {
	case paused:
	case !hasView:
		f.dir.SetView(ll, maxZoom)
	default:
		f.dir.PanTo(ll)
	}
}

// Pause stops following until the pause elapses, then pans back to the user.
func (f *Follow) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paused = true
	f.until = time.Now().Add(f.pause)
	f.gen++
	gen := f.gen
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.pause, func() { f.resume(gen) })
}

func (f *Follow) resume(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || !f.paused {
		f.mu.Unlock()
		return
	}
	f.paused = false
	f.timer = nil
	last, ready, hasView, maxZoom := f.last, f.ready, f.hasView, f.maxZoom
	if last != nil && ready {
		f.hasView = true
	}
	f.mu.Unlock()

	f.logger.Debug("Resuming follow mode")
	if last == nil || !ready {
		return
	}
	if hasView {
		f.dir.PanTo(*last)
	} else {
		f.dir.SetView(*last, maxZoom)
	}
}

// Recenter cancels any pause and re-centers on the user at max zoom. It
// reports false when no location is known yet.
func (f *Follow) Recenter() bool {
	f.mu.Lock()
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.paused = false
	last, maxZoom := f.last, f.maxZoom
	if last != nil {
		f.hasView = true
	}
	f.mu.Unlock()

	if last == nil {
		return false
	}
	f.dir.SetUserLocation(*last)
	f.dir.SetView(*last, maxZoom)
	return true
}

// ApplyZoom records the map zoom and pushes matching marker radii.
func (f *Follow) ApplyZoom(zoom float64) {
	f.mu.Lock()
	f.zoom = zoom
	f.mu.Unlock()

	ambient, user := MarkerRadii(zoom)
	f.dir.SetMarkerRadii(ambient, user)
}

// Stop cancels a pending resume.
func (f *Follow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

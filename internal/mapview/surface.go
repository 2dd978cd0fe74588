// Package mapview is the host side of the embedded map page: which source to
// load, which navigations to allow, how content messages are relayed and how
// the camera follows the user.
package mapview

import (
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"mapclient.gnet.app/internal/bridge"
	"mapclient.gnet.app/internal/mapcache"
	"mapclient.gnet.app/internal/models"
)

// ErrMapUnavailable is returned when offline without a cached page.
var ErrMapUnavailable = errors.New("map is unavailable offline: no cached copy")

const cacheBustParam = "_cb"

// Source is what the native view should load. Exactly one of URI or HTML is set.
type Source struct {
	Offline bool              `json:"offline"`
	URI     string            `json:"uri,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	HTML    string            `json:"html,omitempty"`
	BaseURL string            `json:"baseUrl,omitempty"`
}

// Cache is the part of the map page cache the surface depends on.
type Cache interface {
	Page() (models.MapPage, bool)
	ServerURL() string
	SetServerURL(u string)
}

// Surface hosts the map page.
type Surface struct {
	cache      Cache
	dispatcher *bridge.Dispatcher
	follow     *Follow
	apiKey     string
	origin     string
	now        func() time.Time
	logger     *slog.Logger

	mu        sync.Mutex
	online    bool
	cacheBust int64
}

// NewSurface creates a surface for the map page tracked by cache and wires
// the camera handlers into dispatcher. The origin of the initial map URL
// bounds which navigations are kept inside the view.
func NewSurface(cache Cache, dispatcher *bridge.Dispatcher, follow *Follow, apiKey string, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Surface{
		cache:      cache,
		dispatcher: dispatcher,
		follow:     follow,
		apiKey:     apiKey,
		origin:     originOf(cache.ServerURL()),
		now:        time.Now,
		logger:     logger,
	}
	s.cacheBust = s.now().UnixMilli()

	dispatcher.On(bridge.EventWebViewLoaded, func(ev bridge.Event) {
		follow.Loaded(ev.(bridge.WebViewLoaded).Page)
	})
	dispatcher.On(bridge.EventPointClicksReady, func(ev bridge.Event) {
		ready := ev.(bridge.PointClicksReady)
		follow.Ready(ready.Page, ready.Zoom, ready.MaxZoom)
	})
	dispatcher.On(bridge.EventMapInteraction, func(bridge.Event) {
		follow.Pause()
	})
	dispatcher.On(bridge.EventZoomChanged, func(ev bridge.Event) {
		follow.ApplyZoom(ev.(bridge.ZoomChanged).Zoom)
	})
	return s
}

// Follow returns the camera state machine.
func (s *Surface) Follow() *Follow { return s.follow }

// SetOnline records connectivity. Going online renews the cache-buster so
// the view does not reuse a page from its own HTTP cache.
func (s *Surface) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online && !s.online {
		s.cacheBust = s.now().UnixMilli()
	}
	s.online = online
}

// Source returns the live page when online and the cached copy otherwise.
func (s *Surface) Source(online bool) (Source, error) {
	s.SetOnline(online)

	if online {
		s.mu.Lock()
		cb := s.cacheBust
		s.mu.Unlock()
		return Source{
			URI: mapcache.CacheBustURL(s.cache.ServerURL(), cb),
			Headers: map[string]string{
				"x-api-key":     s.apiKey,
				"Cache-Control": "no-cache",
				"Pragma":        "no-cache",
			},
		}, nil
	}

	page, ok := s.cache.Page()
	if !ok {
		return Source{}, ErrMapUnavailable
	}
	base := page.URL
	if base == "" {
		base = s.cache.ServerURL()
	}
	return Source{Offline: true, HTML: page.HTML, BaseURL: base}, nil
}

// ShouldStartLoad decides whether the view may navigate to rawURL. Sub-frame
// loads are always allowed. A top-level navigation to another page on the
// map server is denied and becomes the tracked map URL instead, so the next
// Source call loads (and caches) it.
func (s *Surface) ShouldStartLoad(rawURL string, isTopFrame bool) bool {
	if !isTopFrame {
		return true
	}
	if s.origin == "" || originOf(rawURL) != s.origin {
		return true
	}
	target, ok := withoutCacheBust(rawURL)
	if !ok {
		return true
	}
	if current, _ := withoutCacheBust(s.cache.ServerURL()); target == current {
		return true
	}
	s.logger.Info("Switching map page", "url", target)
	s.cache.SetServerURL(target)
	return false
}

// HandleMessage relays a raw content message to the dispatcher.
func (s *Surface) HandleMessage(raw []byte) error {
	return s.dispatcher.Dispatch(raw)
}

// withoutCacheBust strips the _cb parameter and normalizes the query order.
func withoutCacheBust(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	q := u.Query()
	q.Del(cacheBustParam)
	u.RawQuery = q.Encode()
	return u.String(), true
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

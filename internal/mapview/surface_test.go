package mapview

import (
	"errors"
	"strings"
	"testing"
	"time"

	"mapclient.gnet.app/internal/bridge"
	"mapclient.gnet.app/internal/models"
)

type fakeCache struct {
	page      *models.MapPage
	serverURL string
}

func (c *fakeCache) Page() (models.MapPage, bool) {
	if c.page == nil {
		return models.MapPage{}, false
	}
	return *c.page, true
}

func (c *fakeCache) ServerURL() string     { return c.serverURL }
func (c *fakeCache) SetServerURL(u string) { c.serverURL = u }

func newTestSurface(cache *fakeCache) (*Surface, *bridge.QueueInjector) {
	q := bridge.NewQueueInjector(100)
	follow := NewFollow(bridge.NewDirectives(q, quietLogger()), time.Hour, quietLogger())
	s := NewSurface(cache, bridge.NewDispatcher(quietLogger()), follow, "secret", quietLogger())
	return s, q
}

func TestSurfaceSource(t *testing.T) {
	cache := &fakeCache{serverURL: "https://gnet.example.test/map"}
	s, _ := newTestSurface(cache)

	var tick int64 = 1000
	s.now = func() time.Time { tick++; return time.UnixMilli(tick) }

	if _, err := s.Source(false); !errors.Is(err, ErrMapUnavailable) {
		t.Fatalf("expected ErrMapUnavailable offline without cache, got %v", err)
	}

	live, err := s.Source(true)
	if err != nil {
		t.Fatal(err)
	}
	if live.Offline || live.URI != "https://gnet.example.test/map?_cb=1001" {
		t.Errorf("unexpected live source %+v", live)
	}
	if live.Headers["x-api-key"] != "secret" || live.Headers["Cache-Control"] != "no-cache" {
		t.Errorf("unexpected headers %v", live.Headers)
	}

	again, _ := s.Source(true)
	if again.URI != live.URI {
		t.Errorf("cache-buster must be stable while online, got %q then %q", live.URI, again.URI)
	}

	cache.page = &models.MapPage{HTML: "<html>cached</html>", URL: "https://gnet.example.test/map/v2"}
	offline, err := s.Source(false)
	if err != nil {
		t.Fatal(err)
	}
	if !offline.Offline || offline.HTML != "<html>cached</html>" || offline.BaseURL != "https://gnet.example.test/map/v2" {
		t.Errorf("unexpected offline source %+v", offline)
	}

	back, _ := s.Source(true)
	if back.URI == live.URI {
		t.Error("expected a new cache-buster after coming back online")
	}
}

func TestShouldStartLoad(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		topFrame  bool
		want      bool
		wantTrack string
	}{
		{"sub-frame", "https://tiles.example.test/1/2/3.png", false, true, "https://gnet.example.test/map"},
		{"other origin", "https://elsewhere.example.test/", true, true, "https://gnet.example.test/map"},
		{"own page with cache-buster", "https://gnet.example.test/map?_cb=17", true, true, "https://gnet.example.test/map"},
		{"other page on server", "https://gnet.example.test/map/district?_cb=17", true, false, "https://gnet.example.test/map/district"},
		{"sub-frame on server", "https://gnet.example.test/other", false, true, "https://gnet.example.test/map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &fakeCache{serverURL: "https://gnet.example.test/map"}
			s, _ := newTestSurface(cache)
			if got := s.ShouldStartLoad(tt.url, tt.topFrame); got != tt.want {
				t.Errorf("ShouldStartLoad() = %v, want %v", got, tt.want)
			}
			if cache.serverURL != tt.wantTrack {
				t.Errorf("tracked URL = %q, want %q", cache.serverURL, tt.wantTrack)
			}
		})
	}
}

func TestHandleMessageDrivesFollow(t *testing.T) {
	s, q := newTestSurface(&fakeCache{serverURL: "https://gnet.example.test/map"})
	defer s.Follow().Stop()

	s.Follow().OnLocation(home)
	if err := s.HandleMessage([]byte(`{"type":"WEBVIEW_LOADED"}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.HandleMessage([]byte(`{"type":"POINT_CLICKS_READY","zoom":14,"maxZoom":18}`)); err != nil {
		t.Fatal(err)
	}
	if s.Follow().State() != FollowFollowing {
		t.Fatalf("expected FOLLOWING, got %s", s.Follow().State())
	}

	if err := s.HandleMessage([]byte(`{"type":"MAP_INTERACTION","kind":"dragstart"}`)); err != nil {
		t.Fatal(err)
	}
	if s.Follow().State() != FollowPaused {
		t.Fatalf("expected PAUSED after interaction, got %s", s.Follow().State())
	}

	q.Drain()
	if err := s.HandleMessage([]byte(`{"type":"ZOOM_CHANGED","zoom":16}`)); err != nil {
		t.Fatal(err)
	}
	if got := q.Drain(); len(got) != 1 || !strings.Contains(got[0], "setMarkerRadii(16,14.4)") {
		t.Errorf("expected a radii directive, got %v", got)
	}

	if err := s.HandleMessage([]byte(`not json`)); err == nil {
		t.Error("expected malformed messages to return an error")
	}
}

func TestHandleMessageReadyBeforeLoaded(t *testing.T) {
	s, q := newTestSurface(&fakeCache{serverURL: "https://gnet.example.test/map"})
	defer s.Follow().Stop()

	for _, raw := range []string{
		`{"type":"POINT_CLICKS_READY","page":"k1","zoom":14,"maxZoom":18}`,
		`{"type":"WEBVIEW_LOADED","page":"k1"}`,
	} {
		if err := s.HandleMessage([]byte(raw)); err != nil {
			t.Fatal(err)
		}
	}
	q.Drain()

	s.Follow().OnLocation(home)
	got := q.Drain()
	if len(got) != 2 || !strings.Contains(got[0], "setUserLocation(") || !strings.Contains(got[1], "setView(55.7558,37.6173,18)") {
		t.Fatalf("expected marker update and initial view, got %v", got)
	}
	if s.Follow().State() != FollowFollowing {
		t.Fatalf("expected FOLLOWING, got %s", s.Follow().State())
	}
}

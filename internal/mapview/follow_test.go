package mapview

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"mapclient.gnet.app/internal/bridge"
	"mapclient.gnet.app/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFollow(pause time.Duration) (*Follow, *bridge.QueueInjector) {
	q := bridge.NewQueueInjector(100)
	return NewFollow(bridge.NewDirectives(q, quietLogger()), pause, quietLogger()), q
}

func ptr(v float64) *float64 { return &v }

// calls extracts the window.__gnet function names from queued scripts.
func calls(scripts []string) []string {
	var out []string
	for _, s := range scripts {
		i := strings.Index(s, "{window.__gnet.")
		j := strings.Index(s[i+1:], "(")
		out = append(out, s[i+len("{window.__gnet."):i+1+j])
	}
	return out
}

func assertCalls(t *testing.T, q *bridge.QueueInjector, want ...string) []string {
	t.Helper()
	scripts := q.Drain()
	got := calls(scripts)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("directives = %v, want %v", got, want)
	}
	return scripts
}

func waitForState(t *testing.T, f *Follow, want FollowState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", f.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var home = models.LatLng{Latitude: 55.7558, Longitude: 37.6173}

func TestFollowInitialView(t *testing.T) {
	f, q := newTestFollow(time.Hour)
	defer f.Stop()

	f.OnLocation(home)
	if q.Len() != 0 {
		t.Fatal("no directive may be sent before the map is ready")
	}
	if f.State() != FollowUninitialized {
		t.Fatalf("expected UNINITIALIZED, got %s", f.State())
	}

	f.Ready("", ptr(14), ptr(18))
	scripts := assertCalls(t, q, "setMarkerRadii", "setUserLocation", "setView")
	if !strings.Contains(scripts[2], "setView(55.7558,37.6173,18)") {
		t.Errorf("expected initial view at max zoom, got %q", scripts[2])
	}
	if f.State() != FollowFollowing {
		t.Fatalf("expected FOLLOWING, got %s", f.State())
	}

	f.OnLocation(models.LatLng{Latitude: 55.7560, Longitude: 37.6175})
	assertCalls(t, q, "setUserLocation", "panTo")
}

func TestFollowReloadResetsView(t *testing.T) {
	f, q := newTestFollow(time.Hour)
	defer f.Stop()

	f.OnLocation(home)
	f.Ready("", nil, nil)
	q.Drain()

	f.Loaded("")
	assertCalls(t, q, "setUserLocation")
	if f.State() != FollowUninitialized {
		t.Fatalf("expected a reload to reset the view, got %s", f.State())
	}

	f.Ready("", nil, nil)
	scripts := assertCalls(t, q, "setMarkerRadii", "setUserLocation", "setView")
	if !strings.Contains(scripts[2], ",null)") {
		t.Errorf("expected unknown max zoom to defer to the map, got %q", scripts[2])
	}
}

func TestFollowPageEventsInEitherOrder(t *testing.T) {
	tests := []struct {
		name  string
		steps func(f *Follow)
	}{
		{"loaded then ready", func(f *Follow) { f.Loaded("p1"); f.Ready("p1", ptr(14), ptr(18)) }},
		{"ready then loaded", func(f *Follow) { f.Ready("p1", ptr(14), ptr(18)); f.Loaded("p1") }},
		{"duplicate loaded", func(f *Follow) { f.Loaded("p1"); f.Ready("p1", ptr(14), ptr(18)); f.Loaded("p1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, q := newTestFollow(time.Hour)
			defer f.Stop()

			tt.steps(f)
			q.Drain()

			f.OnLocation(home)
			scripts := assertCalls(t, q, "setUserLocation", "setView")
			if !strings.Contains(scripts[1], "setView(55.7558,37.6173,18)") {
				t.Errorf("expected initial view at max zoom, got %q", scripts[1])
			}
			if f.State() != FollowFollowing {
				t.Fatalf("expected FOLLOWING, got %s", f.State())
			}
		})
	}
}

func TestFollowNewPageResetsView(t *testing.T) {
	f, q := newTestFollow(time.Hour)
	defer f.Stop()

	f.OnLocation(home)
	f.Loaded("p1")
	f.Ready("p1", nil, ptr(18))
	q.Drain()

	// The next document's map is found before its load event arrives.
	f.Ready("p2", nil, nil)
	assertCalls(t, q, "setMarkerRadii", "setUserLocation", "setView")
	f.Loaded("p2")
	assertCalls(t, q, "setUserLocation")
	if f.State() != FollowFollowing {
		t.Fatalf("expected the second page to stay ready, got %s", f.State())
	}

	f.Loaded("p3")
	if f.State() != FollowUninitialized {
		t.Fatalf("expected a new page to reset the view, got %s", f.State())
	}
}

func TestFollowPauseAndResume(t *testing.T) {
	f, q := newTestFollow(50 * time.Millisecond)
	defer f.Stop()

	f.OnLocation(home)
	f.Ready("", nil, ptr(18))
	q.Drain()

	f.Pause()
	if f.State() != FollowPaused {
		t.Fatalf("expected PAUSED, got %s", f.State())
	}
	if f.PausedUntil().IsZero() {
		t.Error("expected a resume time while paused")
	}

	moved := models.LatLng{Latitude: 55.7570, Longitude: 37.6180}
	f.OnLocation(moved)
	assertCalls(t, q, "setUserLocation")

	waitForState(t, f, FollowFollowing)
	scripts := assertCalls(t, q, "panTo")
	if !strings.Contains(scripts[0], "panTo(55.757,37.618)") {
		t.Errorf("expected pan to the last location, got %q", scripts[0])
	}
}

func TestFollowPauseIsRearmed(t *testing.T) {
	f, _ := newTestFollow(150 * time.Millisecond)
	defer f.Stop()

	f.OnLocation(home)
	f.Ready("", nil, nil)

	f.Pause()
	time.Sleep(100 * time.Millisecond)
	f.Pause()
	time.Sleep(100 * time.Millisecond)
	if f.State() != FollowPaused {
		t.Fatalf("a second interaction must extend the pause, got %s", f.State())
	}
	waitForState(t, f, FollowFollowing)
}

func TestFollowRecenter(t *testing.T) {
	f, q := newTestFollow(time.Hour)
	defer f.Stop()

	if f.Recenter() {
		t.Fatal("recenter without a location must report false")
	}

	f.OnLocation(home)
	f.Ready("", nil, ptr(17))
	f.Pause()
	q.Drain()

	if !f.Recenter() {
		t.Fatal("expected recenter to succeed")
	}
	if f.State() != FollowFollowing {
		t.Fatalf("expected FOLLOWING after recenter, got %s", f.State())
	}
	scripts := assertCalls(t, q, "setUserLocation", "setView")
	if !strings.Contains(scripts[1], "setView(55.7558,37.6173,17)") {
		t.Errorf("expected recenter at max zoom, got %q", scripts[1])
	}
}

func TestFollowApplyZoom(t *testing.T) {
	f, q := newTestFollow(time.Hour)
	f.ApplyZoom(16)
	scripts := assertCalls(t, q, "setMarkerRadii")
	if !strings.Contains(scripts[0], "setMarkerRadii(16,14.4)") {
		t.Errorf("unexpected radii directive %q", scripts[0])
	}
}

package mapcache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/storage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type mapServer struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
}

func newMapServer(t *testing.T, onRequest func(r *http.Request)) *mapServer {
	t.Helper()
	ms := &mapServer{}
	ms.status.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/map", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/map/v2?"+r.URL.RawQuery, http.StatusFound)
	})
	mux.HandleFunc("/map/v2", func(w http.ResponseWriter, r *http.Request) {
		ms.hits.Add(1)
		if onRequest != nil {
			onRequest(r)
		}
		w.WriteHeader(int(ms.status.Load()))
		_, _ = io.WriteString(w, "<html>map</html>")
	})
	ms.Server = httptest.NewServer(mux)
	t.Cleanup(ms.Close)
	return ms
}

func newTestCache(t *testing.T, serverURL string, clk *clock) (*Cache, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(store, nil, Config{
		ServerURL: serverURL,
		APIKey:    "secret",
	}, logger, WithClock(clk.Now))
	return c, store
}

func seed(t *testing.T, store storage.Store, page models.MapPage) {
	t.Helper()
	if err := storage.SetJSON(context.Background(), store, storage.MapPageKey, page); err != nil {
		t.Fatalf("failed to seed map page: %v", err)
	}
}

func TestCacheBustURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://gnet.example.test/map", "https://gnet.example.test/map?_cb=1700"},
		{"https://gnet.example.test/map?lang=ru", "https://gnet.example.test/map?lang=ru&_cb=1700"},
	}
	for _, tt := range tests {
		if got := CacheBustURL(tt.in, 1700); got != tt.want {
			t.Errorf("CacheBustURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		c, _ := newTestCache(t, "http://unused", clk)
		if err := c.Load(ctx); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.State() != StateAbsent {
			t.Errorf("expected ABSENT, got %s", c.State())
		}
	})

	t.Run("corrupt record is treated as absent", func(t *testing.T) {
		c, store := newTestCache(t, "http://unused", clk)
		if err := store.Set(ctx, storage.MapPageKey, []byte("{not json")); err != nil {
			t.Fatal(err)
		}
		if err := c.Load(ctx); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if _, ok := c.Page(); ok {
			t.Error("corrupt record must not be served")
		}
	})

	t.Run("old record is served anyway", func(t *testing.T) {
		c, store := newTestCache(t, "http://unused", clk)
		old := models.MapPage{
			HTML:      "<html>old</html>",
			Timestamp: clk.Now().Add(-30 * 24 * time.Hour).UnixMilli(),
			URL:       "https://gnet.example.test/map",
		}
		seed(t, store, old)
		if err := c.Load(ctx); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		page, ok := c.Page()
		if !ok || page != old {
			t.Errorf("expected %+v, got %+v (ok=%v)", old, page, ok)
		}
		if c.State() != StateStale {
			t.Errorf("expected STALE, got %s", c.State())
		}
		if !c.StaleNotice(true) || c.StaleNotice(false) {
			t.Error("stale notice should only apply while online")
		}
	})
}

func TestRefresh(t *testing.T) {
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	ctx := context.Background()

	var lastRequest atomic.Pointer[http.Request]
	srv := newMapServer(t, func(r *http.Request) { lastRequest.Store(r.Clone(context.Background())) })
	c, store := newTestCache(t, srv.URL+"/map", clk)

	if c.Refresh(ctx, false) {
		t.Fatal("refresh must be a no-op while offline")
	}
	if srv.hits.Load() != 0 {
		t.Fatal("offline refresh must not touch the network")
	}

	if !c.Refresh(ctx, true) {
		t.Fatalf("refresh failed: %s", c.LastError())
	}
	seen := lastRequest.Load()

	if got := seen.URL.Query().Get("_cb"); got != "1700000000000" {
		t.Errorf("expected _cb=1700000000000, got %q", got)
	}
	if got := seen.Header.Get("x-api-key"); got != "secret" {
		t.Errorf("expected api key header, got %q", got)
	}
	for _, h := range []string{"Cache-Control", "Pragma"} {
		if seen.Header.Get(h) != "no-cache" {
			t.Errorf("expected %s: no-cache, got %q", h, seen.Header.Get(h))
		}
	}
	if seen.Header.Get("Expires") != "0" {
		t.Errorf("expected Expires: 0, got %q", seen.Header.Get("Expires"))
	}

	page, ok := c.Page()
	if !ok || page.HTML != "<html>map</html>" || page.Timestamp != clk.Now().UnixMilli() {
		t.Fatalf("unexpected page %+v", page)
	}
	if !strings.HasPrefix(page.URL, srv.URL+"/map/v2") {
		t.Errorf("expected final URL after redirect, got %q", page.URL)
	}

	var persisted models.MapPage
	found, err := storage.GetJSON(ctx, store, storage.MapPageKey, &persisted)
	if err != nil || !found || persisted != page {
		t.Errorf("expected persisted record %+v, got %+v (found=%v, err=%v)", page, persisted, found, err)
	}

	// A failing refresh keeps the previous record and surfaces a message.
	srv.status.Store(http.StatusInternalServerError)
	clk.Advance(time.Minute)
	if c.Refresh(ctx, true) {
		t.Fatal("expected refresh to fail on HTTP 500")
	}
	if c.LastError() != FailureMessage {
		t.Errorf("expected failure message, got %q", c.LastError())
	}
	if kept, _ := c.Page(); kept != page {
		t.Errorf("previous record must stay in place, got %+v", kept)
	}

	srv.status.Store(http.StatusOK)
	if !c.Refresh(ctx, true) {
		t.Fatal("expected refresh to succeed again")
	}
	if c.LastError() != "" {
		t.Errorf("expected error to clear after success, got %q", c.LastError())
	}
}

func TestSyncWithoutRecordBlocks(t *testing.T) {
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	ctx := context.Background()

	var current atomic.Pointer[Cache]
	var downloadingDuringFetch atomic.Bool
	srv := newMapServer(t, func(*http.Request) { downloadingDuringFetch.Store(current.Load().Downloading()) })
	c, _ := newTestCache(t, srv.URL+"/map", clk)
	current.Store(c)

	c.Sync(ctx, false)
	if srv.hits.Load() != 0 {
		t.Fatal("sync must not run while offline")
	}

	c.Sync(ctx, true)
	if srv.hits.Load() != 1 {
		t.Fatalf("expected one blocking download, got %d", srv.hits.Load())
	}
	if !downloadingDuringFetch.Load() {
		t.Error("expected Downloading() to be true during the first download")
	}
	if c.Downloading() {
		t.Error("expected Downloading() to be false afterwards")
	}
	if c.State() != StateFresh {
		t.Errorf("expected FRESH, got %s", c.State())
	}

	c.Sync(ctx, true)
	if srv.hits.Load() != 1 {
		t.Errorf("startup refresh must run once per URL, got %d downloads", srv.hits.Load())
	}
}

func TestSyncCooldown(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		age      time.Duration
		wantHits int32
	}{
		{"refreshed ten minutes ago", 10 * time.Minute, 0},
		{"refreshed two hours ago", 2 * time.Hour, 1},
		{"stale record", 8 * 24 * time.Hour, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
			srv := newMapServer(t, nil)
			c, store := newTestCache(t, srv.URL+"/map", clk)
			seed(t, store, models.MapPage{
				HTML:      "<html>cached</html>",
				Timestamp: clk.Now().Add(-tt.age).UnixMilli(),
				URL:       srv.URL + "/map",
			})
			if err := c.Load(ctx); err != nil {
				t.Fatal(err)
			}

			c.Sync(ctx, true)
			if c.Downloading() {
				t.Error("a cached record must never block on download")
			}
			c.Wait()

			if got := srv.hits.Load(); got != tt.wantHits {
				t.Errorf("expected %d downloads, got %d", tt.wantHits, got)
			}
		})
	}
}

func TestSetServerURLRearmsSync(t *testing.T) {
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	ctx := context.Background()
	srv := newMapServer(t, nil)
	c, _ := newTestCache(t, srv.URL+"/map", clk)

	c.Sync(ctx, true)
	clk.Advance(2 * time.Hour)
	c.Sync(ctx, true)
	c.Wait()
	if srv.hits.Load() != 1 {
		t.Fatalf("expected a single startup refresh, got %d", srv.hits.Load())
	}

	c.SetServerURL(srv.URL + "/map?lang=en")
	c.Sync(ctx, true)
	c.Wait()
	if srv.hits.Load() != 2 {
		t.Errorf("expected a new URL to trigger another refresh, got %d", srv.hits.Load())
	}
	if c.ServerURL() != srv.URL+"/map?lang=en" {
		t.Errorf("unexpected server URL %q", c.ServerURL())
	}
}

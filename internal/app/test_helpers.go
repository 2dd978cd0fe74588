package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mapclient.gnet.app/internal/config"
	"mapclient.gnet.app/internal/storage"
)

const testAPIKey = "test-key"

// fakeNetwork is a device network state toggled by tests.
type fakeNetwork struct {
	connected atomic.Bool
}

func (n *fakeNetwork) IsConnected(context.Context) (bool, error) {
	return n.connected.Load(), nil
}

// pointServer serves the point API and the map page.
type pointServer struct {
	*httptest.Server
	down        atomic.Bool
	rateStatus  atomic.Int32
	dataHits    atomic.Int32
	rateHits    atomic.Int32
	mapHits     atomic.Int32
	lastRatedID atomic.Value
}

const testPointsJSON = `{"points": [
	{"id": 1, "lat": 10.0, "lng": 20.0, "name": "Fountain", "rating": 4.5},
	{"id": "b", "latitude": "10.01", "longitude": 20.0},
	{"lat": 11.0, "lon": 21.0}
]}`

func newPointServer(t *testing.T) *pointServer {
	t.Helper()
	ps := &pointServer{}
	ps.rateStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		ps.dataHits.Add(1)
		if ps.down.Load() || r.Header.Get("x-api-key") != testAPIKey {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, testPointsJSON)
	})
	mux.HandleFunc("/api/rate/", func(w http.ResponseWriter, r *http.Request) {
		ps.rateHits.Add(1)
		ps.lastRatedID.Store(strings.TrimPrefix(r.URL.Path, "/api/rate/"))
		if ps.down.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(ps.rateStatus.Load()))
		_, _ = io.WriteString(w, `{"ok": true}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ps.mapHits.Add(1)
		if ps.down.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "<html>map</html>")
	})

	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func newTestApplication(t *testing.T) (*Application, *pointServer, *fakeNetwork) {
	t.Helper()

	ps := newPointServer(t)
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	cfg := config.Default()
	cfg.ServerURL = ps.URL
	cfg.APIKey = testAPIKey
	cfg.Env = "testing"
	cfg.RateLimit = 100

	network := &fakeNetwork{}
	network.connected.Store(true)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := New(&cfg, logger, ps.Client(), store, network, "test-version")
	if err != nil {
		t.Fatalf("failed to create application: %v", err)
	}
	t.Cleanup(app.Shutdown)
	return app, ps, network
}

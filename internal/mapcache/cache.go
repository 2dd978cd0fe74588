// Package mapcache keeps an offline copy of the map page.
//
// The page is persisted as a single {html, timestamp, url} record. A present
// record is served regardless of age; freshness only decides when a refresh
// is attempted.
package mapcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"mapclient.gnet.app/internal/metrics"
	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/report"
	"mapclient.gnet.app/internal/storage"
)

const (
	DefaultFreshness = 7 * 24 * time.Hour
	DefaultCooldown  = time.Hour

	// FailureMessage is shown to the user after a failed download.
	FailureMessage = "Could not download the map. Check your connection and try again."

	apiKeyHeader = "x-api-key"
)

// State classifies the cached record.
type State string

const (
	StateAbsent State = "ABSENT"
	StateFresh  State = "FRESH"
	StateStale  State = "STALE"
)

// Config holds the cache policy.
type Config struct {
	ServerURL string
	APIKey    string
	Freshness time.Duration
	Cooldown  time.Duration
}

// Cache is the map page cache. It is safe for concurrent use.
type Cache struct {
	store     storage.Store
	hc        *http.Client
	apiKey    string
	freshness time.Duration
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	refreshMu sync.Mutex
	wg        sync.WaitGroup

	mu          sync.RWMutex
	serverURL   string
	page        *models.MapPage
	lastErr     string
	downloading bool
	synced      map[string]bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache backed by store. A nil hc gets a client with a 30s timeout.
func New(store storage.Store, hc *http.Client, cfg Config, logger *slog.Logger, opts ...Option) *Cache {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	c := &Cache{
		store:     store,
		hc:        hc,
		apiKey:    cfg.APIKey,
		freshness: cfg.Freshness,
		cooldown:  cfg.Cooldown,
		logger:    logger,
		now:       time.Now,
		serverURL: cfg.ServerURL,
		synced:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheBustURL appends the _cb query parameter to u.
func CacheBustURL(u string, ms int64) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "_cb=" + strconv.FormatInt(ms, 10)
}

// Load reads the persisted record. A corrupt record is logged and treated as absent.
func (c *Cache) Load(ctx context.Context) error {
	data, err := c.store.Get(ctx, storage.MapPageKey)
	if errors.Is(err, storage.ErrNotFound) {
		c.updateAgeMetric()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cached map page: %w", err)
	}

	var page models.MapPage
	if err := json.Unmarshal(data, &page); err != nil {
		c.logger.Warn("Cached map page is corrupt, ignoring it", "error", err)
		c.updateAgeMetric()
		return nil
	}
	if page.HTML == "" {
		c.updateAgeMetric()
		return nil
	}

	c.mu.Lock()
	c.page = &page
	c.mu.Unlock()
	c.updateAgeMetric()
	c.logger.Info("Loaded cached map page", "url", page.URL, "timestamp", page.Timestamp)
	return nil
}

// Page returns a copy of the current record.
func (c *Cache) Page() (models.MapPage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.page == nil {
		return models.MapPage{}, false
	}
	return *c.page, true
}

// State reports ABSENT, FRESH or STALE for the current record.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Cache) stateLocked() State {
	if c.page == nil || c.page.HTML == "" {
		return StateAbsent
	}
	if c.ageLocked() > c.freshness {
		return StateStale
	}
	return StateFresh
}

func (c *Cache) ageLocked() time.Duration {
	return c.now().Sub(time.UnixMilli(c.page.Timestamp))
}

// IsStale reports whether a present record is older than the freshness window.
func (c *Cache) IsStale() bool {
	return c.State() == StateStale
}

// StaleNotice reports whether the "newer map is being fetched" notice applies.
func (c *Cache) StaleNotice(online bool) bool {
	return online && c.IsStale()
}

// LastError returns the message of the last failed refresh, or "".
func (c *Cache) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Downloading reports whether a blocking first download is in progress.
func (c *Cache) Downloading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.downloading
}

// ServerURL returns the map page location currently tracked.
func (c *Cache) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverURL
}

// SetServerURL points the cache at a new map page. A URL not seen before
// makes the next Sync eligible to refresh again.
func (c *Cache) SetServerURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u == c.serverURL {
		return
	}
	c.logger.Info("Map page URL changed", "from", c.serverURL, "to", u)
	c.serverURL = u
}

// Refresh downloads the map page and replaces the record on success. It is a
// no-op returning false when offline. On failure the previous record stays in
// place and LastError is set.
func (c *Cache) Refresh(ctx context.Context, online bool) bool {
	if !online {
		return false
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	c.lastErr = ""
	serverURL := c.serverURL
	c.mu.Unlock()

	page, err := c.download(ctx, serverURL)
	if err == nil {
		err = storage.SetJSON(ctx, c.store, storage.MapPageKey, page)
	}
	if err != nil {
		c.logger.Error("Failed to refresh map page", "url", serverURL, "error", err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  report.Component("mapcache", "server_url", serverURL),
			Level: sentry.LevelWarning,
		})
		metrics.MapCacheRefreshes.WithLabelValues("error").Inc()

		c.mu.Lock()
		c.lastErr = FailureMessage
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.page = &page
	c.mu.Unlock()

	metrics.MapCacheRefreshes.WithLabelValues("ok").Inc()
	c.updateAgeMetric()
	c.logger.Info("Map page cached", "url", page.URL, "bytes", len(page.HTML))
	return true
}

func (c *Cache) download(ctx context.Context, serverURL string) (models.MapPage, error) {
	ts := c.now().UnixMilli()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, CacheBustURL(serverURL, ts), nil)
	if err != nil {
		return models.MapPage{}, fmt.Errorf("failed to build map request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")

	resp, err := c.hc.Do(req)
	if err != nil {
		return models.MapPage{}, fmt.Errorf("failed to download map page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.MapPage{}, fmt.Errorf("map page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.MapPage{}, fmt.Errorf("failed to read map page: %w", err)
	}

	finalURL := serverURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return models.MapPage{
		HTML:      string(body),
		Timestamp: ts,
		URL:       finalURL,
	}, nil
}

// Sync applies the startup refresh policy. It runs at most once per map URL
// and only while online. Without a record the refresh blocks and Downloading
// reports true; otherwise it runs in the background and the existing record
// keeps being served.
func (c *Cache) Sync(ctx context.Context, online bool) {
	if !online {
		return
	}

	c.mu.Lock()
	if c.downloading || c.synced[c.serverURL] {
		c.mu.Unlock()
		return
	}
	c.synced[c.serverURL] = true

	absent := c.page == nil
	due := absent || c.page.Timestamp == 0 || c.ageLocked() > c.cooldown || c.stateLocked() == StateStale
	if !due {
		c.mu.Unlock()
		c.logger.Debug("Map page refreshed recently, skipping startup refresh")
		return
	}
	if absent {
		c.downloading = true
	}
	c.mu.Unlock()

	if absent {
		c.Refresh(ctx, online)
		c.mu.Lock()
		c.downloading = false
		c.mu.Unlock()
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Refresh(ctx, online)
	}()
}

// Wait blocks until background refreshes started by Sync have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) updateAgeMetric() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.page == nil {
		metrics.MapCacheAge.Set(-1)
		return
	}
	metrics.MapCacheAge.Set(c.ageLocked().Seconds())
}

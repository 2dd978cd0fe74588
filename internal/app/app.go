package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"mapclient.gnet.app/internal/bridge"
	"mapclient.gnet.app/internal/config"
	"mapclient.gnet.app/internal/connectivity"
	"mapclient.gnet.app/internal/device"
	"mapclient.gnet.app/internal/location"
	"mapclient.gnet.app/internal/mapcache"
	"mapclient.gnet.app/internal/mapview"
	"mapclient.gnet.app/internal/metrics"
	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/rating"
	"mapclient.gnet.app/internal/remote"
	"mapclient.gnet.app/internal/report"
	"mapclient.gnet.app/internal/selection"
	"mapclient.gnet.app/internal/storage"
)

// Application wires the client components together and owns the state shown
// in the status bar: the point list, the online flag and the user location.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	Store      storage.Store
	Remote     *remote.Client
	Monitor    *connectivity.Monitor
	MapCache   *mapcache.Cache
	Dispatcher *bridge.Dispatcher
	Injector   *bridge.QueueInjector
	Directives *bridge.Directives
	Surface    *mapview.Surface
	Positions  *device.PushSource
	Tracker    *location.Tracker
	Ratings    *rating.Queue
	Selection  *selection.Flow

	mu     sync.RWMutex
	points []models.Point
	online bool
	user   *models.LatLng

	stopMonitor func()
}

// New creates and wires all dependencies for the Application. network
// reports device connectivity; client is used for every outgoing request.
func New(cfg *config.Config, logger *slog.Logger, client *http.Client, store storage.Store, network connectivity.NetworkState, version string) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	remoteClient, err := remote.New(cfg.ServerURL, cfg.APIKey, client, logger, remote.WithRateLimit(cfg.RateLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}

	cache := mapcache.New(store, client, mapcache.Config{
		ServerURL: cfg.MapPageURL(),
		APIKey:    cfg.APIKey,
		Freshness: cfg.MapFreshness,
		Cooldown:  cfg.MapCooldown,
	}, logger)

	dispatcher := bridge.NewDispatcher(logger)
	injector := bridge.NewQueueInjector(0)
	directives := bridge.NewDirectives(injector, logger)
	follow := mapview.NewFollow(directives, cfg.FollowPause, logger)
	surface := mapview.NewSurface(cache, dispatcher, follow, cfg.APIKey, logger)

	positions := device.NewPushSource(cfg.Location)
	tracker := location.NewTracker(positions, logger)

	app := &Application{
		Config:     cfg,
		Logger:     logger,
		Version:    version,
		Store:      store,
		Remote:     remoteClient,
		Monitor:    connectivity.NewMonitor(network, remoteClient, cfg.PollInterval, logger),
		MapCache:   cache,
		Dispatcher: dispatcher,
		Injector:   injector,
		Directives: directives,
		Surface:    surface,
		Positions:  positions,
		Tracker:    tracker,
		Ratings:    rating.NewQueue(store, logger),
	}

	app.Selection = selection.NewFlow(selection.Deps{
		Points:       app.Points,
		UserLocation: app.UserLocation,
		Online:       app.Online,
		Resync:       app.SyncPoints,
		Camera:       follow,
		Map:          directives,
		Remote:       remoteClient,
		Queue:        app.Ratings,
	}, cfg.TapThresholdM/1000, logger)

	dispatcher.On(bridge.EventPointClick, func(ev bridge.Event) {
		click := ev.(bridge.PointClick)
		app.Selection.HandlePointClick(click.Latitude, click.Longitude)
	})

	tracker.OnUpdate(follow.OnLocation)
	tracker.OnUpdate(app.setUserLocation)

	return app, nil
}

// Bootstrap loads the persisted point list and map page concurrently.
func (app *Application) Bootstrap(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.loadPoints(gctx)
	})
	g.Go(func() error {
		return app.MapCache.Load(gctx)
	})
	return g.Wait()
}

// Run bootstraps the client, then starts the connectivity monitor and the
// location tracker. It returns once both are running.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Bootstrap(ctx); err != nil {
		return err
	}

	stop := app.Monitor.Start(ctx, func(online bool) {
		app.onConnectivity(ctx, online)
	})
	app.mu.Lock()
	app.stopMonitor = stop
	app.mu.Unlock()

	if !app.Tracker.Start(ctx) {
		app.Logger.Warn("Location tracking is disabled")
	}
	return nil
}

// Shutdown stops background work and waits for an in-flight map refresh.
func (app *Application) Shutdown() {
	app.mu.Lock()
	stop := app.stopMonitor
	app.stopMonitor = nil
	app.mu.Unlock()

	if stop != nil {
		stop()
	}
	app.Tracker.Stop()
	app.Surface.Follow().Stop()
	app.MapCache.Wait()
}

// onConnectivity runs after every evaluation, changed or not.
func (app *Application) onConnectivity(ctx context.Context, online bool) {
	app.mu.Lock()
	app.online = online
	app.mu.Unlock()
	app.Surface.SetOnline(online)

	if online {
		if err := app.SyncPoints(ctx); err != nil {
			app.Logger.Warn("Point sync failed", "error", err)
		}
		app.drainRatings(ctx)
	}
	app.MapCache.Sync(ctx, online)
}

// SyncPoints replaces the point list with the remote one and persists it.
func (app *Application) SyncPoints(ctx context.Context) error {
	points, err := app.Remote.FetchPoints(ctx)
	if err != nil {
		metrics.PointSyncs.WithLabelValues("error").Inc()
		return err
	}

	app.setPoints(points)
	metrics.PointSyncs.WithLabelValues("ok").Inc()

	if err := storage.SetJSON(ctx, app.Store, storage.PointsKey, points); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  report.Component("app", "key", storage.PointsKey),
			Level: sentry.LevelError,
		})
		return fmt.Errorf("failed to persist points: %w", err)
	}
	app.Logger.Debug("Points synced", "count", len(points))
	return nil
}

func (app *Application) drainRatings(ctx context.Context) {
	sent, err := app.Ratings.Drain(ctx, app.Remote.SubmitRating)
	if err != nil {
		app.Logger.Error("Failed to drain pending ratings", "error", err)
		return
	}
	if sent > 0 {
		if err := app.SyncPoints(ctx); err != nil {
			app.Logger.Warn("Point sync after drain failed", "error", err)
		}
	}
}

// loadPoints restores the persisted list. Both a bare array and the server
// payload shape {"points": [...]} are accepted.
func (app *Application) loadPoints(ctx context.Context) error {
	raw, err := app.Store.Get(ctx, storage.PointsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load points: %w", err)
	}

	points, err := decodePersistedPoints(raw)
	if err != nil {
		app.Logger.Warn("Ignoring unreadable point cache", "error", err)
		return nil
	}
	app.setPoints(points)
	app.Logger.Info("Loaded cached points", "count", len(points))
	return nil
}

func decodePersistedPoints(raw []byte) ([]models.Point, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("point cache is not valid JSON")
	}
	if gjson.ParseBytes(raw).IsArray() {
		var points []models.Point
		if err := json.Unmarshal(raw, &points); err != nil {
			return nil, err
		}
		return points, nil
	}
	return remote.ParsePoints(raw)
}

func (app *Application) setPoints(points []models.Point) {
	app.mu.Lock()
	app.points = models.ClonePoints(points)
	app.mu.Unlock()
	metrics.PointsTotal.Set(float64(len(points)))
}

func (app *Application) setUserLocation(ll models.LatLng) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.user = &ll
}

// Points returns a copy of the current point list.
func (app *Application) Points() []models.Point {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return models.ClonePoints(app.points)
}

// Online returns the last connectivity evaluation.
func (app *Application) Online() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.online
}

// UserLocation returns the latest position from the tracker.
func (app *Application) UserLocation() (models.LatLng, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.user == nil {
		return models.LatLng{}, false
	}
	return *app.user, true
}

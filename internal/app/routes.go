package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"mapclient.gnet.app/internal/middleware"
)

// Routes builds the local control API used by the native shell.
//
// Registered routes:
//   - GET  /v1/healthcheck             readiness and version
//   - GET  /metrics                    cached Prometheus exposition
//   - GET  /v1/state                   status bar snapshot
//   - GET  /v1/map/source              what the map view should load
//   - GET  /v1/map/scripts             scripts to inject before and after load
//   - POST /v1/map/refresh             manual map page download
//   - POST /v1/bridge/messages         relay of a message posted by the map page
//   - GET  /v1/directives              scripts queued for injection into the map page
//   - POST /v1/navigation              navigation policy for the map view
//   - POST /v1/location                position fix from the device
//   - POST /v1/recenter                re-center on the user
//   - POST /v1/nearest                 open the point nearest to the user
//   - POST /v1/selection/close         dismiss the detail view
//   - POST /v1/points/:id/rating       rate a point
//   - POST /v1/points/:id/navigate     make a point the indicator target
//
// The router is wrapped with Sentry, panic recovery, access logging and
// security headers.
func (app *Application) Routes(ctx context.Context) http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 10*time.Second))

	router.HandlerFunc(http.MethodGet, "/v1/state", app.stateHandler)
	router.HandlerFunc(http.MethodGet, "/v1/map/source", app.mapSourceHandler)
	router.HandlerFunc(http.MethodGet, "/v1/map/scripts", app.mapScriptsHandler)
	router.HandlerFunc(http.MethodPost, "/v1/map/refresh", app.mapRefreshHandler)

	router.HandlerFunc(http.MethodPost, "/v1/bridge/messages", app.bridgeMessageHandler)
	router.HandlerFunc(http.MethodGet, "/v1/directives", app.directivesHandler)
	router.HandlerFunc(http.MethodPost, "/v1/navigation", app.navigationHandler)

	router.HandlerFunc(http.MethodPost, "/v1/location", app.locationHandler)
	router.HandlerFunc(http.MethodPost, "/v1/recenter", app.recenterHandler)
	router.HandlerFunc(http.MethodPost, "/v1/nearest", app.nearestHandler)
	router.HandlerFunc(http.MethodPost, "/v1/selection/close", app.closeSelectionHandler)
	router.HandlerFunc(http.MethodPost, "/v1/points/:id/rating", app.rateHandler)
	router.HandlerFunc(http.MethodPost, "/v1/points/:id/navigate", app.navigateHandler)

	handler := middleware.SentryMiddleware(router)
	handler = middleware.Recover(handler)
	handler = middleware.AccessLog(app.Logger)(handler)
	return middleware.SecurityHeaders(handler)
}

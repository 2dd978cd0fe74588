package app

import (
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"mapclient.gnet.app/internal/bridge"
	"mapclient.gnet.app/internal/device"
	"mapclient.gnet.app/internal/mapcache"
	"mapclient.gnet.app/internal/mapview"
	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/selection"
)

// HealthStatus is the body of GET /v1/healthcheck.
//
// Ready is true once the connectivity monitor has completed its first
// evaluation; until then the handler answers 503 so process supervisors wait
// for the client to know whether it is online.
type HealthStatus struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Online      bool   `json:"online"`
	Points      int    `json:"points"`
	Ready       bool   `json:"ready"`
}

func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	online, known := app.Monitor.Status()

	status := HealthStatus{
		Status:      "available",
		Environment: app.Config.Env,
		Version:     app.Version,
		Online:      online,
		Points:      len(app.Points()),
		Ready:       known,
	}

	code := http.StatusOK
	if !known {
		code = http.StatusServiceUnavailable
	}
	app.writeJSON(w, code, status)
}

func (app *Application) stateHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, app.Snapshot(r.Context()))
}

func (app *Application) mapSourceHandler(w http.ResponseWriter, r *http.Request) {
	src, err := app.Surface.Source(app.Online())
	if errors.Is(err, mapview.ErrMapUnavailable) {
		msg := app.MapCache.LastError()
		if msg == "" {
			msg = err.Error()
		}
		app.errorResponse(w, http.StatusServiceUnavailable, msg)
		return
	}
	if err != nil {
		app.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	app.writeJSON(w, http.StatusOK, src)
}

func (app *Application) mapScriptsHandler(w http.ResponseWriter, r *http.Request) {
	cfg := bridge.DefaultScriptConfig(app.MapCache.ServerURL(), app.Config.APIKey)
	if app.Config.MessageChannel != "" {
		cfg.Channel = app.Config.MessageChannel
	}

	auth, err := bridge.AuthScript(cfg)
	if err != nil {
		app.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	bootstrap, err := bridge.BootstrapScript(cfg)
	if err != nil {
		app.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	app.writeJSON(w, http.StatusOK, envelope{"beforeContentLoaded": auth, "afterLoad": bootstrap})
}

func (app *Application) bridgeMessageHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		app.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := app.Surface.HandleMessage(raw); err != nil {
		app.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) directivesHandler(w http.ResponseWriter, r *http.Request) {
	scripts := app.Injector.Drain()
	if scripts == nil {
		scripts = []string{}
	}
	app.writeJSON(w, http.StatusOK, envelope{"scripts": scripts})
}

func (app *Application) locationHandler(w http.ResponseWriter, r *http.Request) {
	var input models.LatLng
	if err := readJSON(w, r, &input); err != nil {
		app.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := app.Positions.Push(input); err != nil {
		if errors.Is(err, device.ErrInvalidPosition) {
			app.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		app.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) navigationHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		URL        string `json:"url"`
		IsTopFrame bool   `json:"isTopFrame"`
	}
	if err := readJSON(w, r, &input); err != nil {
		app.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	// A denied navigation re-arms the map cache sync, which runs on the
	// next connectivity evaluation.
	allow := app.Surface.ShouldStartLoad(input.URL, input.IsTopFrame)
	app.writeJSON(w, http.StatusOK, envelope{"allow": allow})
}

func (app *Application) rateHandler(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")

	var input struct {
		Rating int `json:"rating"`
	}
	if err := readJSON(w, r, &input); err != nil {
		app.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err := app.Selection.Rate(r.Context(), id, input.Rating)
	switch {
	case err == nil:
		app.writeJSON(w, http.StatusOK, envelope{"status": "sent"})
	case errors.Is(err, selection.ErrInvalidRating):
		app.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, selection.ErrRatingQueued):
		app.writeJSON(w, http.StatusAccepted, envelope{"status": "queued", "message": err.Error()})
	default:
		app.errorResponse(w, http.StatusBadGateway, selection.ErrRatingFailed.Error())
	}
}

func (app *Application) navigateHandler(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	for _, p := range app.Points() {
		if p.ID == id {
			app.Selection.Navigate(p)
			app.writeJSON(w, http.StatusOK, p)
			return
		}
	}
	app.errorResponse(w, http.StatusNotFound, "point not found")
}

func (app *Application) mapRefreshHandler(w http.ResponseWriter, r *http.Request) {
	online := app.Online()
	if !online {
		app.errorResponse(w, http.StatusServiceUnavailable, mapcache.FailureMessage)
		return
	}
	if !app.MapCache.Refresh(r.Context(), online) {
		app.errorResponse(w, http.StatusBadGateway, app.MapCache.LastError())
		return
	}
	app.writeJSON(w, http.StatusOK, envelope{"state": app.MapCache.State()})
}

func (app *Application) recenterHandler(w http.ResponseWriter, r *http.Request) {
	if !app.Surface.Follow().Recenter() {
		app.errorResponse(w, http.StatusConflict, "no user location yet")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) nearestHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := app.Selection.OpenNearestToUser()
	if !ok {
		app.errorResponse(w, http.StatusNotFound, "no point near the user")
		return
	}
	app.writeJSON(w, http.StatusOK, p)
}

func (app *Application) closeSelectionHandler(w http.ResponseWriter, r *http.Request) {
	app.Selection.Close()
	w.WriteHeader(http.StatusNoContent)
}

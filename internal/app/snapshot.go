package app

import (
	"context"

	"mapclient.gnet.app/internal/mapcache"
	"mapclient.gnet.app/internal/mapview"
	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/selection"
)

// MapStatus describes the cached map page.
type MapStatus struct {
	State       mapcache.State `json:"state"`
	URL         string         `json:"url"`
	StaleNotice bool           `json:"staleNotice"`
	Downloading bool           `json:"downloading"`
	Error       string         `json:"error,omitempty"`
}

// Snapshot is everything the status bar and detail views render.
type Snapshot struct {
	Online         bool                 `json:"online"`
	Points         int                  `json:"points"`
	UserLocation   *models.LatLng       `json:"userLocation,omitempty"`
	Selected       *models.Point        `json:"selected,omitempty"`
	Navigating     *models.Point        `json:"navigating,omitempty"`
	Indicator      *selection.Indicator `json:"indicator,omitempty"`
	Follow         mapview.FollowState  `json:"follow"`
	Map            MapStatus            `json:"map"`
	PendingRatings int                  `json:"pendingRatings"`
}

// Snapshot collects the current client state.
func (app *Application) Snapshot(ctx context.Context) Snapshot {
	online := app.Online()
	s := Snapshot{
		Online: online,
		Points: len(app.Points()),
		Follow: app.Surface.Follow().State(),
		Map: MapStatus{
			State:       app.MapCache.State(),
			URL:         app.MapCache.ServerURL(),
			StaleNotice: app.MapCache.StaleNotice(online),
			Downloading: app.MapCache.Downloading(),
			Error:       app.MapCache.LastError(),
		},
	}

	if ll, ok := app.UserLocation(); ok {
		s.UserLocation = &ll
		if ind, ok := app.Selection.Indicator(ll); ok {
			s.Indicator = &ind
		}
	}
	if p, ok := app.Selection.Selected(); ok {
		s.Selected = &p
	}
	if p, ok := app.Selection.Navigating(); ok {
		s.Navigating = &p
	}

	pending, err := app.Ratings.Len(ctx)
	if err != nil {
		app.Logger.Warn("Failed to count pending ratings", "error", err)
	}
	s.PendingRatings = pending
	return s
}

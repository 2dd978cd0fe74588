package models

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point represents a rateable point of interest as the client knows it.
//
// IMPORTANT:
// Points built from remote payloads without an id receive a random
// placeholder id at parse time (see remote.MapPoint). Such ids are not
// stable across syncs, so anything keyed by them (pending ratings, the
// navigating point) may stop matching after the next sync.
type Point struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Rating    float64 `json:"rating"`

	// PlaceholderID is set when ID was synthesized locally. It is persisted
	// with the point list so the flag survives an offline restart.
	PlaceholderID bool `json:"placeholderId,omitempty"`
}

// Location returns the point coordinates.
func (p Point) Location() LatLng {
	return LatLng{Latitude: p.Latitude, Longitude: p.Longitude}
}

// PendingRating is a rating submission that could not be delivered yet.
// Timestamp is unix milliseconds and may be zero for entries written by
// older clients.
type PendingRating struct {
	PointID   string `json:"pointId"`
	Rating    int    `json:"rating"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// MapPage is the persisted copy of the served map page. The three fields are
// always written together as one record.
type MapPage struct {
	HTML      string `json:"html"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
}

// ClonePoints returns a copy of points so callers can't mutate a shared list.
func ClonePoints(points []Point) []Point {
	return append([]Point(nil), points...)
}

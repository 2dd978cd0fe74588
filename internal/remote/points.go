package remote

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"mapclient.gnet.app/internal/models"
)

// Field preference tables for remote point payloads. The first key that is
// present and not null wins, even when its value turns out to be unusable;
// later keys are only consulted when earlier ones are absent.
var (
	idFields        = []string{"id"}
	latitudeFields  = []string{"lat", "latitude", "y"}
	longitudeFields = []string{"lng", "lon", "longitude", "x"}
	nameFields      = []string{"name"}
	ratingFields    = []string{"rating"}
)

// firstPresent returns the value of the first key in keys that exists on obj
// and is not JSON null.
func firstPresent(obj gjson.Result, keys []string) (gjson.Result, bool) {
	for _, k := range keys {
		v := obj.Get(gjson.Escape(k))
		if v.Exists() && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// numberOf coerces a payload value to a float. Numbers and numeric strings
// are accepted; anything else, including NaN and infinities, becomes 0.
func numberOf(v gjson.Result) float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// MapPoint converts one remote point object into the canonical schema.
// It never fails: missing coordinates and ratings become 0, a missing id is
// replaced by a random placeholder and a missing name by "Point <id>".
func MapPoint(obj gjson.Result) models.Point {
	var p models.Point

	if v, ok := firstPresent(obj, idFields); ok {
		p.ID = v.String()
	} else {
		p.ID = uuid.NewString()
		p.PlaceholderID = true
	}

	if v, ok := firstPresent(obj, latitudeFields); ok {
		p.Latitude = numberOf(v)
	}
	if v, ok := firstPresent(obj, longitudeFields); ok {
		p.Longitude = numberOf(v)
	}

	if v, ok := firstPresent(obj, nameFields); ok {
		p.Name = v.String()
	} else {
		p.Name = fmt.Sprintf("Point %s", p.ID)
	}

	if v, ok := firstPresent(obj, ratingFields); ok {
		p.Rating = numberOf(v)
	}

	return p
}

// ParsePoints decodes a `{ "points": [...] }` payload. A payload without a
// points array yields an empty list; only invalid JSON is an error.
func ParsePoints(body []byte) ([]models.Point, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON payload")
	}

	list := gjson.GetBytes(body, "points")
	if !list.IsArray() {
		return []models.Point{}, nil
	}

	items := list.Array()
	points := make([]models.Point, 0, len(items))
	for _, item := range items {
		points = append(points, MapPoint(item))
	}
	return points, nil
}

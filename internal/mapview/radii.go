package mapview

import "math"

// MarkerScale is a zoom-dependent radius curve for one kind of marker.
type MarkerScale struct {
	Base    float64
	Scale   float64
	MinMult float64
	MaxMult float64
}

const ZoomRef = 14

var (
	AmbientMarkers = MarkerScale{Base: 10, Scale: 0.30, MinMult: 1.0, MaxMult: 2.2}
	UserMarker     = MarkerScale{Base: 12, Scale: 0.10, MinMult: 1.0, MaxMult: 3.0}
)

// Radius returns the marker radius at zoom, rounded to one decimal.
func (s MarkerScale) Radius(zoom float64) float64 {
	mult := 1 + (zoom-ZoomRef)*s.Scale
	mult = math.Max(s.MinMult, math.Min(s.MaxMult, mult))
	return math.Round(s.Base*mult*10) / 10
}

// MarkerRadii returns the ambient and user marker radii for zoom.
func MarkerRadii(zoom float64) (ambient, user float64) {
	return AmbientMarkers.Radius(zoom), UserMarker.Radius(zoom)
}

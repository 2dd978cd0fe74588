package mapview

import "testing"

func TestMarkerRadii(t *testing.T) {
	tests := []struct {
		zoom        float64
		wantAmbient float64
		wantUser    float64
	}{
		{14, 10, 12},
		{16, 16, 14.4},
		{15.5, 14.5, 13.8},
		{20, 22, 19.2}, // ambient clamped at 2.2x
		{10, 10, 12},   // both clamped at 1x
		{40, 22, 36},   // user clamped at 3x
	}

	for _, tt := range tests {
		ambient, user := MarkerRadii(tt.zoom)
		if ambient != tt.wantAmbient || user != tt.wantUser {
			t.Errorf("MarkerRadii(%v) = (%v, %v), want (%v, %v)", tt.zoom, ambient, user, tt.wantAmbient, tt.wantUser)
		}
	}
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name       string
		a, b       Geo
		expectedM  float64
		toleranceM float64
	}{
		{"same point", Geo{-42.0, -71.5}, Geo{-42.0, -71.5}, 0, 0.001},
		{"one degree latitude", Geo{-42.0, -71.5}, Geo{-43.0, -71.5}, 111_195, 200},
		{"short hop", Geo{-42.000, -71.500}, Geo{-42.004, -71.500}, 445, 5},
		{"el bolson to bariloche", Geo{-41.96, -71.53}, Geo{-41.13, -71.31}, 92_800, 1_500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			assert.InDelta(t, tt.expectedM, got, tt.toleranceM)
		})
	}
}

func TestPointToSegment(t *testing.T) {
	t.Run("point beside segment midpoint", func(t *testing.T) {
		// Segment runs north-south; the point sits due east of its middle.
		a := Geo{Lat: -42.00, Lon: -71.50}
		b := Geo{Lat: -42.02, Lon: -71.50}
		p := Geo{Lat: -42.01, Lon: -71.49}

		d := PointToSegment(p, a, b)
		direct := Haversine(p, Geo{Lat: -42.01, Lon: -71.50})
		assert.InDelta(t, direct, d, 5)
	})

	t.Run("point beyond segment end clamps to endpoint", func(t *testing.T) {
		a := Geo{Lat: -42.00, Lon: -71.50}
		b := Geo{Lat: -42.01, Lon: -71.50}
		p := Geo{Lat: -42.05, Lon: -71.50}

		d := PointToSegment(p, a, b)
		assert.InDelta(t, Haversine(p, b), d, 1)
	})

	t.Run("degenerate segment", func(t *testing.T) {
		a := Geo{Lat: -42.00, Lon: -71.50}
		p := Geo{Lat: -42.01, Lon: -71.50}

		d := PointToSegment(p, a, a)
		assert.InDelta(t, Haversine(p, a), d, 0.01)
	})
}

func TestGridCell(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Geo
		sameCell bool
	}{
		{"identical points", Geo{-42.005, -71.505}, Geo{-42.005, -71.505}, true},
		{"same cell", Geo{-42.001, -71.501}, Geo{-42.009, -71.509}, true},
		{"adjacent cell latitude", Geo{-42.009, -71.505}, Geo{-42.011, -71.505}, false},
		{"adjacent cell longitude", Geo{-42.005, -71.509}, Geo{-42.005, -71.511}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.sameCell {
				assert.Equal(t, GridCell(tt.a), GridCell(tt.b))
			} else {
				assert.NotEqual(t, GridCell(tt.a), GridCell(tt.b))
			}
		})
	}
}

func TestBoundingBoxContains(t *testing.T) {
	box := BoundingBox{West: -72.5, South: -43.5, East: -70.5, North: -40.5}

	assert.True(t, box.Contains(Geo{Lat: -42.0, Lon: -71.5}))
	assert.True(t, box.Contains(Geo{Lat: -40.5, Lon: -70.5})) // boundary is inside
	assert.False(t, box.Contains(Geo{Lat: -39.9, Lon: -71.5}))
	assert.False(t, box.Contains(Geo{Lat: -42.0, Lon: -73.0}))
}

package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sanFrancisco = Coordinates{Latitude: 37.7749, Longitude: -122.4194}
	losAngeles   = Coordinates{Latitude: 34.0522, Longitude: -118.2437}
)

func TestHaversine(t *testing.T) {
	t.Run("SF to LA", func(t *testing.T) {
		d := Haversine(sanFrancisco, losAngeles)
		assert.InDelta(t, 559, d, 2)
	})

	t.Run("same point", func(t *testing.T) {
		assert.InDelta(t, 0, Haversine(sanFrancisco, sanFrancisco), 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.InDelta(t, Haversine(sanFrancisco, losAngeles), Haversine(losAngeles, sanFrancisco), 1e-9)
	})
}

func TestBoundingBox(t *testing.T) {
	box := BoundingBox{North: 38, South: 37, East: -122, West: -123}

	tests := []struct {
		name string
		c    Coordinates
		want bool
	}{
		{"inside", sanFrancisco, true},
		{"outside", losAngeles, false},
		{"on edge", Coordinates{Latitude: 38, Longitude: -122}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, box.Contains(tt.c))
		})
	}

	assert.True(t, box.Valid())
	assert.False(t, BoundingBox{North: 1, South: 2}.Valid())
	assert.True(t, box.Intersects(BoundingBox{North: 39, South: 37.5, East: -121, West: -122.5}))
	assert.False(t, box.Intersects(BoundingBox{North: 35, South: 34, East: -118, West: -119}))
}

func TestRadiusBoxes(t *testing.T) {
	boxes := RadiusBoxes(sanFrancisco, 111.19)
	require.Len(t, boxes, 1)
	b := boxes[0]
	assert.InDelta(t, sanFrancisco.Latitude+1, b.North, 1e-3)
	assert.InDelta(t, sanFrancisco.Latitude-1, b.South, 1e-3)
	// longitude span widens away from the equator
	assert.Greater(t, b.East-sanFrancisco.Longitude, 1.0)
	assert.True(t, b.Contains(sanFrancisco))

	assert.Nil(t, RadiusBoxes(sanFrancisco, -1))
}

func TestRadiusBoxes_CoversCircleEdge(t *testing.T) {
	tests := []struct {
		name   string
		center Coordinates
		point  Coordinates
		radius float64
	}{
		{"high latitude east reach", Coordinates{Latitude: 60, Longitude: 0}, Coordinates{Latitude: 61.25, Longitude: 18.08}, 1000},
		{"across the antimeridian westward", Coordinates{Latitude: 0, Longitude: 179.95}, Coordinates{Latitude: 0, Longitude: -179.95}, 50},
		{"across the antimeridian eastward", Coordinates{Latitude: 0, Longitude: -179.95}, Coordinates{Latitude: 0, Longitude: 179.95}, 50},
		{"over the pole", Coordinates{Latitude: 89, Longitude: 0}, Coordinates{Latitude: 89, Longitude: 180}, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.LessOrEqual(t, Haversine(tt.center, tt.point), tt.radius)
			covered := false
			for _, b := range RadiusBoxes(tt.center, tt.radius) {
				assert.True(t, b.Valid(), "box %+v", b)
				covered = covered || b.Contains(tt.point)
			}
			assert.True(t, covered)
		})
	}
}

func TestRadiusBoxes_SplitsAtAntimeridian(t *testing.T) {
	boxes := RadiusBoxes(Coordinates{Latitude: 0, Longitude: 179.95}, 50)
	require.Len(t, boxes, 2)
	assert.Equal(t, 180.0, boxes[0].East)
	assert.Equal(t, -180.0, boxes[1].West)
	assert.Less(t, boxes[1].East, -179.5)

	boxes = RadiusBoxes(Coordinates{Latitude: 89.5, Longitude: 10}, 100)
	require.Len(t, boxes, 1)
	assert.Equal(t, 90.0, boxes[0].North)
	assert.Equal(t, -180.0, boxes[0].West)
	assert.Equal(t, 180.0, boxes[0].East)
}

func TestGridCells(t *testing.T) {
	g := NewGrid(0.1)

	assert.Equal(t, CellKey{X: -1225, Y: 377}, g.Cell(sanFrancisco))

	cells := g.Cells(BoundingBox{North: 0.25, South: 0.05, East: 0.15, West: 0.0})
	assert.Len(t, cells, 6)
	assert.Contains(t, cells, CellKey{X: 0, Y: 0})
	assert.Contains(t, cells, CellKey{X: 1, Y: 2})

	assert.Nil(t, g.Cells(BoundingBox{North: 0, South: 1, East: 1, West: 0}))
}

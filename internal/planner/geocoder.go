package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
)

// ErrLocationNotFound is returned by geocoders for unknown names.
var ErrLocationNotFound = errors.New("location not found")

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (geo.Coordinates, error)
}

// Gazetteer is a fixed name-to-coordinates table. Lookups ignore case and
// surrounding whitespace.
type Gazetteer struct {
	places map[string]geo.Coordinates
}

// NewGazetteer builds a gazetteer, rejecting out-of-range coordinates.
func NewGazetteer(places map[string]geo.Coordinates) (*Gazetteer, error) {
	g := &Gazetteer{places: make(map[string]geo.Coordinates, len(places))}
	for name, c := range places {
		if !c.Valid() {
			return nil, fmt.Errorf("gazetteer entry %q: invalid coordinates %s", name, c)
		}
		g.places[gazetteerKey(name)] = c
	}
	return g, nil
}

func (g *Gazetteer) Geocode(_ context.Context, name string) (geo.Coordinates, error) {
	c, ok := g.places[gazetteerKey(name)]
	if !ok {
		return geo.Coordinates{}, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}
	return c, nil
}

// Len returns the number of known places.
func (g *Gazetteer) Len() int {
	return len(g.places)
}

func gazetteerKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const (
	earthRadiusMeters = 6371008.8
	squareMetersPerAc = 4046.8564224
)

// ParseBoundary decodes a GeoJSON polygon boundary. Bare geometries and
// single-feature wrappers are both accepted.
func ParseBoundary(raw json.RawMessage) (*geom.Polygon, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty boundary")
	}
	var probe struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode boundary: %w", err)
	}
	if probe.Type == "Feature" {
		raw = probe.Geometry
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode boundary geometry: %w", err)
	}
	polygon, ok := g.(*geom.Polygon)
	if !ok {
		return nil, fmt.Errorf("boundary is %T, want polygon", g)
	}
	if polygon.NumLinearRings() == 0 || polygon.LinearRing(0).NumCoords() < 4 {
		return nil, fmt.Errorf("boundary ring needs at least 4 coordinates")
	}
	return polygon, nil
}

// BoundaryCenter returns the lat/lng midpoint of the boundary's bounding box.
func BoundaryCenter(polygon *geom.Polygon) (lat, lng float64) {
	b := polygon.Bounds()
	return (b.Min(1) + b.Max(1)) / 2, (b.Min(0) + b.Max(0)) / 2
}

// BoundaryAcres approximates the area enclosed by the outer ring using an
// equirectangular projection around the ring's mean latitude.
func BoundaryAcres(polygon *geom.Polygon) float64 {
	ring := polygon.LinearRing(0)
	n := ring.NumCoords()
	if n < 4 {
		return 0
	}
	lat, _ := BoundaryCenter(polygon)
	cosLat := math.Cos(lat * math.Pi / 180)
	flat := make([]float64, 0, n*2)
	for i := 0; i < n; i++ {
		c := ring.Coord(i)
		x := c.X() * math.Pi / 180 * earthRadiusMeters * cosLat
		y := c.Y() * math.Pi / 180 * earthRadiusMeters
		flat = append(flat, x, y)
	}
	projected := geom.NewLinearRingFlat(geom.XY, flat)
	return math.Abs(projected.Area()) / squareMetersPerAc
}

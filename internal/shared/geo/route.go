package geo

import (
	"encoding/binary"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Rect is a lat/lng bounding box in degrees.
type Rect struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Bounds returns the bounding box of coords. ok is false for an empty route.
func Bounds(coords []Coord) (Rect, bool) {
	if len(coords) == 0 {
		return Rect{}, false
	}
	r := s2.RectFromLatLng(s2.LatLngFromDegrees(coords[0].Lat, coords[0].Lng))
	for _, c := range coords[1:] {
		r = r.AddPoint(s2.LatLngFromDegrees(c.Lat, c.Lng))
	}
	return Rect{
		South: r.Lo().Lat.Degrees(),
		West:  r.Lo().Lng.Degrees(),
		North: r.Hi().Lat.Degrees(),
		East:  r.Hi().Lng.Degrees(),
	}, true
}

func lineString(coords []Coord) (*geom.LineString, error) {
	flat := make([]geom.Coord, 0, len(coords))
	for _, c := range coords {
		flat = append(flat, geom.Coord{c.Lng, c.Lat})
	}
	return geom.NewLineString(geom.XY).SetCoords(flat)
}

// RouteWKB encodes coords as a little-endian WKB LineString (x=lng, y=lat).
// Routes shorter than two points have no geometry and return nil.
func RouteWKB(coords []Coord) ([]byte, error) {
	if len(coords) < 2 {
		return nil, nil
	}
	ls, err := lineString(coords)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(ls, binary.LittleEndian)
}

// RouteGeoJSON encodes coords as a GeoJSON LineString geometry.
func RouteGeoJSON(coords []Coord) ([]byte, error) {
	ls, err := lineString(coords)
	if err != nil {
		return nil, err
	}
	return geojson.Marshal(ls)
}

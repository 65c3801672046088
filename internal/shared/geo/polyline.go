package geo

import (
	"errors"
	"math"
	"strings"
)

const polylinePrecision = 1e5

var ErrInvalidPolyline = errors.New("invalid polyline")

// EncodePolyline encodes coordinates with the Google polyline algorithm at
// five decimal digits.
func EncodePolyline(coords []Coord) string {
	var b strings.Builder
	var prevLat, prevLng int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * polylinePrecision))
		lng := int64(math.Round(c.Lng * polylinePrecision))
		encodeValue(&b, lat-prevLat)
		encodeValue(&b, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return b.String()
}

func encodeValue(b *strings.Builder, delta int64) {
	v := uint64(delta << 1)
	if delta < 0 {
		v = ^v
	}
	for v >= 0x20 {
		b.WriteByte(byte((0x20 | (v & 0x1f)) + 63))
		v >>= 5
	}
	b.WriteByte(byte(v + 63))
}

// DecodePolyline is the inverse of EncodePolyline.
func DecodePolyline(s string) ([]Coord, error) {
	var coords []Coord
	var lat, lng int64
	for i := 0; i < len(s); {
		dLat, next, err := decodeValue(s, i)
		if err != nil {
			return nil, err
		}
		dLng, next, err := decodeValue(s, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lng += dLng
		coords = append(coords, Coord{
			Lat: float64(lat) / polylinePrecision,
			Lng: float64(lng) / polylinePrecision,
		})
	}
	return coords, nil
}

func decodeValue(s string, i int) (int64, int, error) {
	var result uint64
	var shift uint
	for {
		if i >= len(s) {
			return 0, i, ErrInvalidPolyline
		}
		chunk := int(s[i]) - 63
		i++
		if chunk < 0 || chunk > 0x3f {
			return 0, i, ErrInvalidPolyline
		}
		result |= uint64(chunk&0x1f) << shift
		shift += 5
		if chunk < 0x20 {
			break
		}
		if shift > 60 {
			return 0, i, ErrInvalidPolyline
		}
	}

	v := int64(result >> 1)
	if result&1 != 0 {
		v = ^v
	}
	return v, i, nil
}

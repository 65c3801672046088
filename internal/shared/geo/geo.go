package geo

import "math"

// EarthRadiusM is the mean Earth radius used by every distance in this package.
const EarthRadiusM = 6371000.0

// Coord is a WGS84 position in decimal degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceMeters(lat1, lng1, lat2, lng2) / 1000
}

// Distance is DistanceMeters over two Coords.
func Distance(a, b Coord) float64 {
	return DistanceMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// TotalDistanceKm sums the distances between consecutive coordinates.
func TotalDistanceKm(coords []Coord) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += Distance(coords[i-1], coords[i])
	}
	return total / 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

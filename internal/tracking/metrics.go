package tracking

import (
	"math"
	"time"
)

// minPaceDistanceM keeps pace at zero until the session has covered enough
// ground for the division to mean anything.
const minPaceDistanceM = 10.0

// PaceMinPerKm is minutes per kilometre, or 0 below 10 m.
func PaceMinPerKm(distanceM float64, duration time.Duration) float64 {
	if distanceM < minPaceDistanceM {
		return 0
	}
	return (duration.Seconds() / 60) / (distanceM / 1000)
}

// SpeedKmh is 0 until one second has elapsed.
func SpeedKmh(distanceM float64, duration time.Duration) float64 {
	if duration < time.Second {
		return 0
	}
	return (distanceM / 1000) / (duration.Seconds() / 3600)
}

// PaceParts splits a pace into whole minutes and rounded seconds.
func PaceParts(pace float64) (minutes, seconds int) {
	whole := math.Floor(pace)
	return int(whole), int(math.Round((pace - whole) * 60))
}

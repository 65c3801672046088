package tracking

import (
	"fmt"
	"time"

	"github.com/phcodesage/trail-zap/internal/location"
	"github.com/phcodesage/trail-zap/internal/shared/geo"
)

type State int

const (
	StateIdle State = iota
	StateTracking
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "tracking":
		*s = StateTracking
	case "paused":
		*s = StatePaused
	default:
		return fmt.Errorf("unknown tracking state %q", b)
	}
	return nil
}

type ActivityType string

const (
	ActivityRun  ActivityType = "run"
	ActivityWalk ActivityType = "walk"
	ActivityBike ActivityType = "bike"
	ActivityHike ActivityType = "hike"
)

func (a ActivityType) Valid() bool {
	switch a {
	case ActivityRun, ActivityWalk, ActivityBike, ActivityHike:
		return true
	}
	return false
}

// TrackPoint is one accepted location sample.
type TrackPoint struct {
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Altitude          float64   `json:"altitude"`
	Speed             float64   `json:"speed"`
	Accuracy          float64   `json:"accuracy"`
	Timestamp         time.Time `json:"timestamp"`
	DistanceFromStart float64   `json:"distance_from_start"`
}

func (p TrackPoint) Coord() geo.Coord {
	return geo.Coord{Lat: p.Latitude, Lng: p.Longitude}
}

// Metrics is a point-in-time view of the current session.
type Metrics struct {
	State          State              `json:"state"`
	ActivityType   ActivityType       `json:"activity_type"`
	StartTime      *time.Time         `json:"start_time,omitempty"`
	DurationSecs   int64              `json:"duration_secs"`
	DistanceM      float64            `json:"distance_meters"`
	DistanceKm     float64            `json:"distance_km"`
	ElevationGainM float64            `json:"elevation_gain"`
	PaceMinPerKm   float64            `json:"pace_min_per_km"`
	SpeedKmh       float64            `json:"speed_kmh"`
	PointCount     int                `json:"point_count"`
	Current        *location.Position `json:"current_position,omitempty"`
	Recoverable    bool               `json:"recoverable"`
}

// Result is a finalized session. Route and Polyline hold the simplified
// route only.
type Result struct {
	ActivityType   ActivityType `json:"activity_type"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	DurationSecs   int64        `json:"duration_secs"`
	DistanceM      float64      `json:"distance_meters"`
	DistanceKm     float64      `json:"distance_km"`
	ElevationGainM float64      `json:"elevation_gain"`
	PaceMinPerKm   float64      `json:"pace_min_per_km"`
	SpeedKmh       float64      `json:"speed_kmh"`
	Polyline       string       `json:"polyline"`
	Route          []geo.Coord  `json:"route"`
	RawPointCount  int          `json:"raw_point_count"`
	Bounds         *geo.Rect    `json:"bounds,omitempty"`
}

type EventKind string

const (
	EventStarted      EventKind = "started"
	EventSample       EventKind = "sample"
	EventTick         EventKind = "tick"
	EventPaused       EventKind = "paused"
	EventResumed      EventKind = "resumed"
	EventStopped      EventKind = "stopped"
	EventDiscarded    EventKind = "discarded"
	EventRecoverable  EventKind = "recoverable"
	EventRecovered    EventKind = "recovered"
	EventActivityType EventKind = "activity_type"
)

// Event is emitted after every state or metric change.
type Event struct {
	Kind    EventKind `json:"kind"`
	State   State     `json:"state"`
	Metrics Metrics   `json:"metrics"`
	At      time.Time `json:"at"`
}

package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	snapshotKey           = "current_session"
	snapshotSchemaVersion = 1
)

var ErrUnsupportedSnapshot = errors.New("unsupported snapshot schema version")

// Snapshot is the persisted form of an in-flight session. Field names are a
// stable on-disk format; add fields, never rename them.
type Snapshot struct {
	SchemaVersion  int          `json:"schema_version"`
	State          State        `json:"state"`
	ActivityType   ActivityType `json:"activity_type"`
	DurationSecs   int64        `json:"duration_secs"`
	DistanceMeters float64      `json:"distance_meters"`
	ElevationGain  float64      `json:"elevation_gain"`
	StartTime      time.Time    `json:"start_time"`
	SavedAt        time.Time    `json:"saved_at"`
	TrackPoints    []TrackPoint `json:"track_points"`
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = snapshotSchemaVersion
	}
	if s.TrackPoints == nil {
		s.TrackPoints = []TrackPoint{}
	}
	return json.Marshal(s)
}

// DecodeSnapshot parses a stored snapshot. Snapshots written before the
// schema_version key existed are version 1.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = 1
	}
	if s.SchemaVersion > snapshotSchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, s.SchemaVersion)
	}
	if s.ActivityType == "" {
		s.ActivityType = ActivityRun
	}
	return s, nil
}

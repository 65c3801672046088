package activity

import "time"

// Activity is the canonical remote record.
type Activity struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name" validate:"required,max=200"`
	Type          string    `json:"type" validate:"required,oneof=run walk bike hike"`
	DistanceKm    float64   `json:"distance_km" validate:"gte=0"`
	DurationSecs  int64     `json:"duration_secs" validate:"gte=0"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required,gtefield=StartTime"`
	MapPolyline   string    `json:"map_polyline"`
	ElevationGain float64   `json:"elevation_gain" validate:"gte=0"`
	AvgHR         *int      `json:"avg_hr,omitempty" validate:"omitempty,gt=0,lt=300"`
	MaxHR         *int      `json:"max_hr,omitempty" validate:"omitempty,gt=0,lt=300"`
	Description   string    `json:"description"`
	IsPrivate     bool      `json:"is_private"`
	AvgPace       float64   `json:"avg_pace"`
	CreatedAt     time.Time `json:"created_at"`
}

type Filter struct {
	OwnerID string
	Type    string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// Patch holds the user-editable fields; nil means unchanged.
type Patch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Type        *string `json:"type" validate:"omitempty,oneof=run walk bike hike"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

type Stats struct {
	Count              int     `json:"count"`
	TotalDistanceKm    float64 `json:"total_distance_km"`
	TotalDurationSecs  int64   `json:"total_duration_secs"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	LongestDistanceKm  float64 `json:"longest_distance_km"`
	AvgPace            float64 `json:"avg_pace"`
}

package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phcodesage/trail-zap/internal/activity"
	"github.com/phcodesage/trail-zap/internal/storage"
	"github.com/phcodesage/trail-zap/internal/tracking"
)

// SaveRequest names a finished session returned by the tracker's Stop.
type SaveRequest struct {
	Session     tracking.Result `json:"session"`
	Name        string          `json:"name" validate:"max=200"`
	Description string          `json:"description" validate:"max=2000"`
	AvgHR       *int            `json:"avg_hr" validate:"omitempty,gt=0,lt=300"`
	MaxHR       *int            `json:"max_hr" validate:"omitempty,gt=0,lt=300"`
}

// SaveOutcome tells where the activity ended up: the remote store, or the
// local queue under LocalID.
type SaveOutcome struct {
	Remote   bool               `json:"remote"`
	Activity *activity.Activity `json:"activity,omitempty"`
	LocalID  string             `json:"local_id,omitempty"`
}

// Save stores a finished session. Online and signed in, it writes straight
// to the remote store; otherwise, or when that write fails, it queues the
// record locally. Only a failed local write is returned as an error.
func (e *Engine) Save(ctx context.Context, req SaveRequest) (SaveOutcome, error) {
	rec := pendingFromRequest(req)

	var remoteErr error
	if owner, ok := e.identity.UserID(); ok && e.network.Online() {
		created, err := e.remote.Create(ctx, toActivity(rec, owner))
		if err == nil {
			return SaveOutcome{Remote: true, Activity: &created}, nil
		}
		remoteErr = err
		logrus.WithError(err).Warn("save: remote write failed, queueing locally")
	}

	now := e.now()
	rec.LocalID = e.queue.NewLocalID(now)
	rec.CreatedAt = now
	rec.SyncStatus = storage.StatusPending
	if remoteErr != nil {
		msg := remoteErr.Error()
		rec.SyncError = &msg
	}
	if err := e.queue.AppendPending(ctx, rec); err != nil {
		return SaveOutcome{}, fmt.Errorf("queue activity: %w", err)
	}
	e.emit()
	return SaveOutcome{LocalID: rec.LocalID}, nil
}

func pendingFromRequest(req SaveRequest) storage.PendingActivity {
	s := req.Session
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultName(s.ActivityType, s.StartTime)
	}
	return storage.PendingActivity{
		Name:          name,
		Type:          string(s.ActivityType),
		DistanceKm:    s.DistanceKm,
		DurationSecs:  s.DurationSecs,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		MapPolyline:   s.Polyline,
		ElevationGain: s.ElevationGainM,
		AvgHR:         req.AvgHR,
		MaxHR:         req.MaxHR,
		Description:   req.Description,
	}
}

// DefaultName labels an unnamed activity by time of day, e.g. "Morning Run".
func DefaultName(t tracking.ActivityType, start time.Time) string {
	var part string
	switch h := start.Hour(); {
	case h >= 5 && h < 12:
		part = "Morning"
	case h >= 12 && h < 17:
		part = "Afternoon"
	case h >= 17 && h < 21:
		part = "Evening"
	default:
		part = "Night"
	}

	kind := "Activity"
	switch t {
	case tracking.ActivityRun:
		kind = "Run"
	case tracking.ActivityWalk:
		kind = "Walk"
	case tracking.ActivityBike:
		kind = "Ride"
	case tracking.ActivityHike:
		kind = "Hike"
	}
	return part + " " + kind
}

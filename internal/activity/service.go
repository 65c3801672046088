package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/phcodesage/trail-zap/internal/db"
	"github.com/phcodesage/trail-zap/internal/shared/geo"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

var (
	ErrNotFound    = errors.New("activity not found")
	ErrUnavailable = errors.New("remote store not configured")
)

const activityColumns = `id, user_id, name, type, distance_km, duration_secs, start_time, end_time, ` +
	`map_polyline, elevation_gain, avg_hr, max_hr, description, is_private, COALESCE(avg_pace, 0), created_at`

type Service struct {
	db           db.Querier
	redis        *redis.Client
	pollInterval time.Duration
}

// NewService wraps the hosted activities table. redisClient is optional and
// only used for change notifications.
func NewService(db db.Querier, redisClient *redis.Client, pollInterval time.Duration) *Service {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Service{db: db, redis: redisClient, pollInterval: pollInterval}
}

// Create inserts a new activity. The route geometry is derived from the
// polyline; avg_pace and created_at come back from the database.
func (s *Service) Create(ctx context.Context, in Activity) (Activity, error) {
	if s.db == nil {
		return Activity{}, ErrUnavailable
	}
	in.ID = uuid.NewString()
	route := routeWKB(in.MapPolyline)

	row := s.db.QueryRow(ctx, `
		INSERT INTO activities (id, user_id, name, type, distance_km, duration_secs, start_time, end_time,
			map_polyline, elevation_gain, avg_hr, max_hr, description, is_private, route)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, ST_SetSRID(ST_GeomFromWKB($15), 4326))
		RETURNING COALESCE(avg_pace, 0), created_at
	`, in.ID, in.UserID, in.Name, in.Type, in.DistanceKm, in.DurationSecs, in.StartTime, in.EndTime,
		in.MapPolyline, in.ElevationGain, in.AvgHR, in.MaxHR, in.Description, in.IsPrivate, route)
	if err := row.Scan(&in.AvgPace, &in.CreatedAt); err != nil {
		return Activity{}, fmt.Errorf("create activity: %w", err)
	}
	s.notify(ctx, in.UserID)
	return in, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Activity, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != "" {
		add("user_id=$%d", f.OwnerID)
	}
	if f.Type != "" {
		add("type=$%d", f.Type)
	}
	if !f.Since.IsZero() {
		add("start_time>=$%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("start_time<$%d", f.Until)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var q strings.Builder
	q.WriteString("SELECT " + activityColumns + " FROM activities")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, limit, f.Offset)
	fmt.Fprintf(&q, " ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (Activity, error) {
	if s.db == nil {
		return Activity{}, ErrUnavailable
	}
	row := s.db.QueryRow(ctx, "SELECT "+activityColumns+" FROM activities WHERE id=$1", id)
	a, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Activity{}, ErrNotFound
	}
	return a, err
}

func (s *Service) Update(ctx context.Context, id string, patch Patch) (Activity, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Type != nil {
		a.Type = *patch.Type
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.IsPrivate != nil {
		a.IsPrivate = *patch.IsPrivate
	}

	_, err = s.db.Exec(ctx, `
		UPDATE activities
		SET name=$2, type=$3, description=$4, is_private=$5
		WHERE id=$1
	`, a.ID, a.Name, a.Type, a.Description, a.IsPrivate)
	if err != nil {
		return Activity{}, err
	}
	s.notify(ctx, a.UserID)
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return ErrUnavailable
	}
	var owner string
	err := s.db.QueryRow(ctx, `DELETE FROM activities WHERE id=$1 RETURNING user_id`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notify(ctx, owner)
	return nil
}

func (s *Service) Stats(ctx context.Context, ownerID string) (Stats, error) {
	if s.db == nil {
		return Stats{}, ErrUnavailable
	}
	var st Stats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(distance_km), 0), COALESCE(SUM(duration_secs), 0),
			COALESCE(SUM(elevation_gain), 0), COALESCE(MAX(distance_km), 0)
		FROM activities WHERE user_id=$1
	`, ownerID).Scan(&st.Count, &st.TotalDistanceKm, &st.TotalDurationSecs, &st.TotalElevationGain, &st.LongestDistanceKm)
	if err != nil {
		return Stats{}, err
	}
	if st.TotalDistanceKm > 0 {
		st.AvgPace = (float64(st.TotalDurationSecs) / 60) / st.TotalDistanceKm
	}
	return st, nil
}

// RouteGeoJSON renders the activity's route as a GeoJSON LineString.
func (s *Service) RouteGeoJSON(ctx context.Context, id string) ([]byte, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	coords, err := geo.DecodePolyline(a.MapPolyline)
	if err != nil {
		return nil, err
	}
	return geo.RouteGeoJSON(coords)
}

func scanActivity(row pgx.Row) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.DistanceKm, &a.DurationSecs, &a.StartTime, &a.EndTime,
		&a.MapPolyline, &a.ElevationGain, &a.AvgHR, &a.MaxHR, &a.Description, &a.IsPrivate, &a.AvgPace, &a.CreatedAt)
	return a, err
}

// routeWKB returns nil when the polyline has no usable line, leaving the
// route column NULL.
func routeWKB(polyline string) []byte {
	coords, err := geo.DecodePolyline(polyline)
	if err != nil {
		logrus.WithError(err).Warn("activity polyline not decodable, storing without route")
		return nil
	}
	b, err := geo.RouteWKB(coords)
	if err != nil {
		logrus.WithError(err).Warn("encode route wkb")
		return nil
	}
	return b
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusFailed  SyncStatus = "failed"
)

var ErrMissingLocalID = errors.New("local_id required")

// PendingActivity is a finished activity that has not been confirmed by the
// remote store yet.
type PendingActivity struct {
	LocalID       string     `json:"local_id"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	DistanceKm    float64    `json:"distance_km"`
	DurationSecs  int64      `json:"duration_secs"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	MapPolyline   string     `json:"map_polyline"`
	ElevationGain float64    `json:"elevation_gain"`
	AvgHR         *int       `json:"avg_hr"`
	MaxHR         *int       `json:"max_hr,omitempty"`
	Description   string     `json:"description"`
	SyncStatus    SyncStatus `json:"sync_status"`
	CreatedAt     time.Time  `json:"created_at"`
	RemoteID      *string    `json:"remote_id,omitempty"`
	SyncError     *string    `json:"sync_error,omitempty"`
}

const pendingColumns = `local_id, name, type, distance_km, duration_secs, start_time, end_time, map_polyline,
	elevation_gain, avg_hr, max_hr, description, sync_status, created_at, remote_id, sync_error`

func (s *Store) AppendPending(ctx context.Context, rec PendingActivity) error {
	if rec.LocalID == "" {
		return ErrMissingLocalID
	}
	if rec.SyncStatus == "" {
		rec.SyncStatus = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_activities (`+pendingColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, rec.LocalID, rec.Name, rec.Type, rec.DistanceKm, rec.DurationSecs,
		formatTime(rec.StartTime), formatTime(rec.EndTime), rec.MapPolyline, rec.ElevationGain,
		nullInt(rec.AvgHR), nullInt(rec.MaxHR), rec.Description, string(rec.SyncStatus),
		formatTime(rec.CreatedAt), nullString(rec.RemoteID), nullString(rec.SyncError))
	if err != nil {
		return fmt.Errorf("append pending %s: %w", rec.LocalID, err)
	}
	return nil
}

// ListPending returns every queued record, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]PendingActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_activities
		ORDER BY created_at, local_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingActivity
	for rows.Next() {
		rec, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetPending(ctx context.Context, localID string) (PendingActivity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_activities WHERE local_id = ?
	`, localID)
	rec, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingActivity{}, ErrNotFound
	}
	return rec, err
}

// UpdatePending overwrites the mutable fields of an existing record.
func (s *Store) UpdatePending(ctx context.Context, rec PendingActivity) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_activities
		SET name=?, type=?, distance_km=?, duration_secs=?, start_time=?, end_time=?, map_polyline=?,
		    elevation_gain=?, avg_hr=?, max_hr=?, description=?, sync_status=?, remote_id=?, sync_error=?
		WHERE local_id=?
	`, rec.Name, rec.Type, rec.DistanceKm, rec.DurationSecs, formatTime(rec.StartTime), formatTime(rec.EndTime),
		rec.MapPolyline, rec.ElevationGain, nullInt(rec.AvgHR), nullInt(rec.MaxHR), rec.Description,
		string(rec.SyncStatus), nullString(rec.RemoteID), nullString(rec.SyncError), rec.LocalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePending(ctx context.Context, localID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_activities WHERE local_id = ?`, localID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSynced purges records the remote store has confirmed.
func (s *Store) DeleteSynced(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_activities WHERE sync_status = ?`, string(StatusSynced))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (PendingActivity, error) {
	var (
		rec                           PendingActivity
		status                        string
		startTime, endTime, createdAt string
		avgHR, maxHR                  sql.NullInt64
		remoteID, syncErr             sql.NullString
	)
	err := row.Scan(&rec.LocalID, &rec.Name, &rec.Type, &rec.DistanceKm, &rec.DurationSecs,
		&startTime, &endTime, &rec.MapPolyline, &rec.ElevationGain, &avgHR, &maxHR,
		&rec.Description, &status, &createdAt, &remoteID, &syncErr)
	if err != nil {
		return PendingActivity{}, err
	}

	rec.SyncStatus = SyncStatus(status)
	if rec.StartTime, err = parseTime(startTime); err != nil {
		return PendingActivity{}, err
	}
	if rec.EndTime, err = parseTime(endTime); err != nil {
		return PendingActivity{}, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return PendingActivity{}, err
	}
	if avgHR.Valid {
		v := int(avgHR.Int64)
		rec.AvgHR = &v
	}
	if maxHR.Valid {
		v := int(maxHR.Int64)
		rec.MaxHR = &v
	}
	if remoteID.Valid {
		rec.RemoteID = &remoteID.String
	}
	if syncErr.Valid {
		rec.SyncError = &syncErr.String
	}
	return rec, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

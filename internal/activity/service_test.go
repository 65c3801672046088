package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var activityCols = []string{"id", "user_id", "name", "type", "distance_km", "duration_secs", "start_time", "end_time",
	"map_polyline", "elevation_gain", "avg_hr", "max_hr", "description", "is_private", "avg_pace", "created_at"}

const samplePolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func intPtr(v int) *int { return &v }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func addActivityRow(rows *pgxmock.Rows, id, owner string, start time.Time) *pgxmock.Rows {
	return rows.AddRow(id, owner, "Morning run", "run", 5.0, int64(1500), start, start.Add(25*time.Minute),
		samplePolyline, 12.0, intPtr(150), intPtr(171), "", false, 5.0, start)
}

func TestCreateActivity(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)
	createdAt := time.Now()

	mock.ExpectQuery(`(?s)INSERT INTO activities .* ST_SetSRID\(ST_GeomFromWKB\(\$15\), 4326\)`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Morning run", "run", 5.0, int64(1500), start, end,
			samplePolyline, 12.0, pgxmock.AnyArg(), pgxmock.AnyArg(), "", false, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"avg_pace", "created_at"}).AddRow(5.0, createdAt))

	svc := NewService(mock, nil, 0)
	a, err := svc.Create(context.Background(), Activity{
		UserID:        "user-1",
		Name:          "Morning run",
		Type:          "run",
		DistanceKm:    5,
		DurationSecs:  1500,
		StartTime:     start,
		EndTime:       end,
		MapPolyline:   samplePolyline,
		ElevationGain: 12,
		AvgHR:         intPtr(150),
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	if a.ID == "" || a.AvgPace != 5 || !a.CreatedAt.Equal(createdAt) {
		t.Fatalf("created activity = %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateActivityError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO activities`).WillReturnError(errors.New("connection reset"))

	svc := NewService(mock, nil, 0)
	if _, err := svc.Create(context.Background(), Activity{UserID: "user-1", MapPolyline: "???"}); err == nil {
		t.Fatalf("expected create error")
	}
}

func TestRouteWKB(t *testing.T) {
	if b := routeWKB(samplePolyline); len(b) == 0 {
		t.Fatalf("routeWKB() returned nothing for a 3 point line")
	}
	if b := routeWKB("_p~iF~ps|U"); b != nil {
		t.Fatalf("routeWKB() for a single point = %v, want nil", b)
	}
	if b := routeWKB("_p~iF~ps|"); b != nil {
		t.Fatalf("routeWKB() for truncated input = %v, want nil", b)
	}
}

func TestListGetUpdateDelete(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, 0)
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .* FROM activities WHERE user_id=\$1 AND type=\$2 AND start_time>=\$3 ORDER BY start_time DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("user-1", "run", start, 200, 10).
		WillReturnRows(addActivityRow(pgxmock.NewRows(activityCols), "a1", "user-1", start))

	list, err := svc.List(context.Background(), Filter{OwnerID: "user-1", Type: "run", Since: start, Limit: 1000, Offset: 10})
	if err != nil || len(list) != 1 || list[0].ID != "a1" || *list[0].MaxHR != 171 {
		t.Fatalf("list = %+v, %v", list, err)
	}

	mock.ExpectQuery(`(?s)SELECT .* FROM activities WHERE id=\$1`).
		WithArgs("a1").
		WillReturnRows(addActivityRow(pgxmock.NewRows(activityCols), "a1", "user-1", start))
	mock.ExpectExec(`UPDATE activities`).
		WithArgs("a1", "Evening run", "run", "", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	name, private := "Evening run", true
	updated, err := svc.Update(context.Background(), "a1", Patch{Name: &name, IsPrivate: &private})
	if err != nil || updated.Name != "Evening run" || !updated.IsPrivate {
		t.Fatalf("update = %+v, %v", updated, err)
	}

	mock.ExpectQuery(`DELETE FROM activities WHERE id=\$1 RETURNING user_id`).
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	if err := svc.Delete(context.Background(), "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAndDeleteNotFound(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, 0)

	mock.ExpectQuery(`(?s)SELECT .* FROM activities WHERE id=\$1`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get error = %v, want ErrNotFound", err)
	}

	mock.ExpectQuery(`DELETE FROM activities`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete error = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, 0)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "distance", "duration", "elevation", "longest"}).
			AddRow(3, 15.0, int64(4500), 30.0, 8.0))

	st, err := svc.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Count != 3 || st.AvgPace != 5 || st.LongestDistanceKm != 8 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRouteGeoJSON(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, 0)
	start := time.Now()

	mock.ExpectQuery(`(?s)SELECT .* FROM activities WHERE id=\$1`).
		WithArgs("a1").
		WillReturnRows(addActivityRow(pgxmock.NewRows(activityCols), "a1", "user-1", start))

	body, err := svc.RouteGeoJSON(context.Background(), "a1")
	if err != nil {
		t.Fatalf("geojson: %v", err)
	}
	if len(body) == 0 || body[0] != '{' {
		t.Fatalf("geojson body = %s", body)
	}
}

func TestUnconfiguredRemote(t *testing.T) {
	svc := NewService(nil, nil, 0)
	if _, err := svc.Create(context.Background(), Activity{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("create error = %v, want ErrUnavailable", err)
	}
	if _, err := svc.List(context.Background(), Filter{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("list error = %v, want ErrUnavailable", err)
	}
	if _, err := svc.Update(context.Background(), "a1", Patch{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("update error = %v, want ErrUnavailable", err)
	}
}

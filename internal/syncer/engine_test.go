package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/phcodesage/trail-zap/internal/activity"
	"github.com/phcodesage/trail-zap/internal/config"
	"github.com/phcodesage/trail-zap/internal/connectivity"
	"github.com/phcodesage/trail-zap/internal/db"
	"github.com/phcodesage/trail-zap/internal/storage"
)

type fakeRemote struct {
	mu      sync.Mutex
	fail    map[string]error
	calls   []string
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRemote) Create(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, a.Name)
	err := f.fail[a.Name]
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return activity.Activity{}, err
	}
	a.ID = "remote-" + a.Name
	return a, nil
}

func (f *fakeRemote) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeIdentity struct{ user string }

func (f fakeIdentity) UserID() (string, bool) { return f.user, f.user != "" }

func newQueue(t *testing.T) *storage.Store {
	t.Helper()
	sqlDB, err := db.OpenSQLite(config.Config{LocalDBPath: filepath.Join(t.TempDir(), "queue.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	store, err := storage.New(context.Background(), sqlDB)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return store
}

func onlineMonitor(online bool) *connectivity.Monitor {
	m := connectivity.New(nil, nil, time.Hour)
	m.Set(online)
	return m
}

func enqueue(t *testing.T, q *storage.Store, names ...string) []string {
	t.Helper()
	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	var ids []string
	for i, name := range names {
		created := base.Add(time.Duration(i) * time.Minute)
		rec := storage.PendingActivity{
			LocalID:      q.NewLocalID(created),
			Name:         name,
			Type:         "run",
			DistanceKm:   5,
			DurationSecs: 1500,
			StartTime:    created,
			EndTime:      created.Add(25 * time.Minute),
			MapPolyline:  "_p~iF~ps|U_ulLnnqC",
			CreatedAt:    created,
		}
		if err := q.AppendPending(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, rec.LocalID)
	}
	return ids
}

func TestSyncPartialFailureThenRetry(t *testing.T) {
	q := newQueue(t)
	ids := enqueue(t, q, "first", "second", "third")
	remote := &fakeRemote{fail: map[string]error{"second": errors.New("500 internal error")}}
	engine := NewEngine(q, remote, fakeIdentity{"user-1"}, onlineMonitor(true), time.Hour)

	report, ok := engine.SyncPending(context.Background())
	if !ok {
		t.Fatalf("SyncPending() refused")
	}
	if report.Status != StatusFailed || report.Total != 3 || report.Synced != 2 {
		t.Fatalf("report = %+v", report)
	}
	want := []struct {
		id     string
		status storage.SyncStatus
	}{{ids[0], storage.StatusSynced}, {ids[1], storage.StatusFailed}, {ids[2], storage.StatusSynced}}
	for i, w := range want {
		got := report.Items[i]
		if got.LocalID != w.id || got.Status != w.status {
			t.Fatalf("item %d = %+v, want %s %s", i, got, w.id, w.status)
		}
	}
	if report.Items[0].RemoteID != "remote-first" || report.Items[2].RemoteID != "remote-third" {
		t.Fatalf("remote ids not recorded: %+v", report.Items)
	}
	if report.Items[1].Error == "" {
		t.Fatalf("failed item has no error")
	}
	if st := engine.Status(); st.Status != StatusFailed || st.Synced != 2 || st.Total != 3 {
		t.Fatalf("engine status = %+v", st)
	}

	left, _ := q.ListPending(context.Background())
	if len(left) != 1 || left[0].LocalID != ids[1] || left[0].SyncStatus != storage.StatusFailed ||
		left[0].SyncError == nil || *left[0].SyncError != "500 internal error" {
		t.Fatalf("queue after batch = %+v", left)
	}

	// retry with the backend healthy again
	remote.mu.Lock()
	remote.fail = nil
	remote.calls = nil
	remote.mu.Unlock()

	report, ok = engine.SyncPending(context.Background())
	if !ok || report.Status != StatusCompleted || report.Total != 1 {
		t.Fatalf("retry report = %+v, %v", report, ok)
	}
	if calls := remote.callNames(); len(calls) != 1 || calls[0] != "second" {
		t.Fatalf("retry uploaded %v, want only second", calls)
	}
	if left, _ := q.ListPending(context.Background()); len(left) != 0 {
		t.Fatalf("queue not empty after retry: %+v", left)
	}
}

func TestSyncRefusals(t *testing.T) {
	q := newQueue(t)
	enqueue(t, q, "first")
	remote := &fakeRemote{}

	offline := NewEngine(q, remote, fakeIdentity{"user-1"}, onlineMonitor(false), time.Hour)
	if _, ok := offline.SyncPending(context.Background()); ok {
		t.Fatalf("synced while offline")
	}
	anonymous := NewEngine(q, remote, fakeIdentity{}, onlineMonitor(true), time.Hour)
	if _, ok := anonymous.SyncPending(context.Background()); ok {
		t.Fatalf("synced while signed out")
	}
	if len(remote.callNames()) != 0 {
		t.Fatalf("remote called on refused sync")
	}
	if st := offline.Status(); st.Status != StatusIdle {
		t.Fatalf("status = %+v, want idle", st)
	}
}

func TestSyncSingleBatchInFlight(t *testing.T) {
	q := newQueue(t)
	enqueue(t, q, "first")
	remote := &fakeRemote{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	engine := NewEngine(q, remote, fakeIdentity{"user-1"}, onlineMonitor(true), time.Hour)

	done := make(chan Report)
	go func() {
		r, _ := engine.SyncPending(context.Background())
		done <- r
	}()
	<-remote.entered

	if engine.Status().Status != StatusSyncing {
		t.Fatalf("status = %v, want syncing", engine.Status().Status)
	}
	if _, ok := engine.SyncPending(context.Background()); ok {
		t.Fatalf("second batch started while first in flight")
	}
	close(remote.block)
	if r := <-done; r.Status != StatusCompleted {
		t.Fatalf("first batch = %+v", r)
	}
}

func TestSyncEmptyQueueAndReset(t *testing.T) {
	engine := NewEngine(newQueue(t), &fakeRemote{}, fakeIdentity{"user-1"}, onlineMonitor(true), 20*time.Millisecond)

	report, ok := engine.SyncPending(context.Background())
	if !ok || report.Status != StatusCompleted || report.Total != 0 {
		t.Fatalf("empty sync = %+v, %v", report, ok)
	}

	deadline := time.Now().Add(time.Second)
	for engine.Status().Status != StatusIdle {
		if time.Now().After(deadline) {
			t.Fatalf("status never reverted to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunSyncsOnReconnect(t *testing.T) {
	q := newQueue(t)
	enqueue(t, q, "first")
	remote := &fakeRemote{}
	monitor := onlineMonitor(false)
	engine := NewEngine(q, remote, fakeIdentity{"user-1"}, monitor, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(stopped)
	}()

	// give Run time to subscribe before the transition
	time.Sleep(20 * time.Millisecond)
	if len(remote.callNames()) != 0 {
		t.Fatalf("synced while offline")
	}
	monitor.Set(true)

	deadline := time.Now().Add(time.Second)
	for len(remote.callNames()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no sync after reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestDiscardPending(t *testing.T) {
	q := newQueue(t)
	ids := enqueue(t, q, "first")
	engine := NewEngine(q, &fakeRemote{}, fakeIdentity{}, onlineMonitor(false), time.Hour)

	if !engine.Discard(context.Background(), ids[0]) {
		t.Fatalf("Discard() = false")
	}
	if engine.Discard(context.Background(), ids[0]) {
		t.Fatalf("second Discard() = true")
	}
}

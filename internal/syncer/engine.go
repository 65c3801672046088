package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phcodesage/trail-zap/internal/activity"
	"github.com/phcodesage/trail-zap/internal/storage"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// State is what the UI banner shows.
type State struct {
	Status    Status    `json:"status"`
	Synced    int       `json:"synced"`
	Total     int       `json:"total"`
	LastError string    `json:"last_error,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
}

type ItemOutcome struct {
	LocalID  string             `json:"local_id"`
	Status   storage.SyncStatus `json:"sync_status"`
	RemoteID string             `json:"remote_id,omitempty"`
	Error    string             `json:"sync_error,omitempty"`
}

// Report describes one batch. Synced records are purged from the queue once
// the batch ends, so the report is the only place their outcome remains.
type Report struct {
	Status Status        `json:"status"`
	Total  int           `json:"total"`
	Synced int           `json:"synced"`
	Items  []ItemOutcome `json:"items"`
	Purged int64         `json:"purged"`
}

type Remote interface {
	Create(ctx context.Context, a activity.Activity) (activity.Activity, error)
}

type Identity interface {
	UserID() (string, bool)
}

type Network interface {
	Online() bool
	Subscribe() (<-chan bool, func())
}

type Queue interface {
	AppendPending(ctx context.Context, rec storage.PendingActivity) error
	ListPending(ctx context.Context) ([]storage.PendingActivity, error)
	UpdatePending(ctx context.Context, rec storage.PendingActivity) error
	DeletePending(ctx context.Context, localID string) error
	DeleteSynced(ctx context.Context) (int64, error)
	NewLocalID(now time.Time) string
}

// Engine drains the pending queue into the remote store. At most one batch
// runs at a time and items inside a batch upload one after another.
type Engine struct {
	queue      Queue
	remote     Remote
	identity   Identity
	network    Network
	resetDelay time.Duration
	now        func() time.Time

	mu       sync.Mutex
	state    State
	batchGen uint64

	listenersMu sync.Mutex
	listeners   map[chan State]struct{}
}

func NewEngine(queue Queue, remote Remote, identity Identity, network Network, resetDelay time.Duration) *Engine {
	return &Engine{
		queue:      queue,
		remote:     remote,
		identity:   identity,
		network:    network,
		resetDelay: resetDelay,
		now:        time.Now,
		state:      State{Status: StatusIdle},
		listeners:  map[chan State]struct{}{},
	}
}

func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Pending(ctx context.Context) ([]storage.PendingActivity, error) {
	return e.queue.ListPending(ctx)
}

// SyncPending uploads every queued record. It returns false without doing
// anything when a batch is already running, the device is offline or no
// user is signed in.
func (e *Engine) SyncPending(ctx context.Context) (Report, bool) {
	e.mu.Lock()
	if e.state.Status == StatusSyncing {
		e.mu.Unlock()
		return Report{}, false
	}
	if !e.network.Online() {
		e.mu.Unlock()
		return Report{}, false
	}
	owner, ok := e.identity.UserID()
	if !ok {
		e.mu.Unlock()
		return Report{}, false
	}
	e.batchGen++
	gen := e.batchGen
	e.state = State{Status: StatusSyncing, LastRun: e.now()}
	e.mu.Unlock()
	e.emit()

	report := e.runBatch(ctx, owner)
	e.finish(gen, report)
	return report, true
}

func (e *Engine) runBatch(ctx context.Context, owner string) Report {
	items, err := e.queue.ListPending(ctx)
	if err != nil {
		logrus.WithError(err).Error("sync: read pending queue")
		e.setError(err.Error())
		return Report{Status: StatusFailed}
	}

	var todo []storage.PendingActivity
	for _, rec := range items {
		// synced leftovers from an interrupted purge only need removing
		if rec.SyncStatus != storage.StatusSynced {
			todo = append(todo, rec)
		}
	}

	report := Report{Total: len(todo), Items: make([]ItemOutcome, 0, len(todo))}
	e.mu.Lock()
	e.state.Total = len(todo)
	e.mu.Unlock()
	e.emit()

	for _, rec := range todo {
		outcome := e.syncOne(ctx, owner, rec)
		report.Items = append(report.Items, outcome)
		if outcome.Status == storage.StatusSynced {
			report.Synced++
		}
		e.mu.Lock()
		e.state.Synced = report.Synced
		if outcome.Error != "" {
			e.state.LastError = outcome.Error
		}
		e.mu.Unlock()
		e.emit()
	}

	purged, err := e.queue.DeleteSynced(ctx)
	if err != nil {
		logrus.WithError(err).Warn("sync: purge synced records")
	}
	report.Purged = purged

	report.Status = StatusCompleted
	if report.Synced != report.Total {
		report.Status = StatusFailed
	}
	logrus.WithFields(logrus.Fields{
		"total":  report.Total,
		"synced": report.Synced,
		"status": report.Status,
	}).Info("sync batch finished")
	return report
}

func (e *Engine) syncOne(ctx context.Context, owner string, rec storage.PendingActivity) ItemOutcome {
	rec.SyncStatus = storage.StatusSyncing
	if err := e.queue.UpdatePending(ctx, rec); err != nil {
		logrus.WithError(err).WithField("local_id", rec.LocalID).Warn("sync: mark syncing")
	}

	created, err := e.remote.Create(ctx, toActivity(rec, owner))
	if err != nil {
		msg := err.Error()
		rec.SyncStatus = storage.StatusFailed
		rec.SyncError = &msg
		rec.RemoteID = nil
	} else {
		id := created.ID
		rec.SyncStatus = storage.StatusSynced
		rec.RemoteID = &id
		rec.SyncError = nil
	}

	if uerr := e.queue.UpdatePending(ctx, rec); uerr != nil {
		logrus.WithError(uerr).WithField("local_id", rec.LocalID).Warn("sync: record outcome")
	}

	out := ItemOutcome{LocalID: rec.LocalID, Status: rec.SyncStatus}
	if rec.RemoteID != nil {
		out.RemoteID = *rec.RemoteID
	}
	if rec.SyncError != nil {
		out.Error = *rec.SyncError
		logrus.WithField("local_id", rec.LocalID).WithError(err).Warn("sync: upload failed")
	}
	return out
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.state.LastError = msg
	e.mu.Unlock()
}

// finish publishes the batch result and schedules the return to idle.
func (e *Engine) finish(gen uint64, report Report) {
	e.mu.Lock()
	e.state.Status = report.Status
	e.state.Synced = report.Synced
	e.state.Total = report.Total
	e.mu.Unlock()
	e.emit()

	time.AfterFunc(e.resetDelay, func() {
		e.mu.Lock()
		if e.batchGen != gen || e.state.Status == StatusSyncing {
			e.mu.Unlock()
			return
		}
		e.state.Status = StatusIdle
		e.mu.Unlock()
		e.emit()
	})
}

// Run syncs once if already online and again on every offline to online
// transition until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	changes, cancel := e.network.Subscribe()
	defer cancel()

	online := e.network.Online()
	if online {
		e.SyncPending(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-changes:
			if !ok {
				return
			}
			if now && !online {
				logrus.Info("back online, syncing pending activities")
				e.SyncPending(ctx)
			}
			online = now
		}
	}
}

// Discard drops a queued record. It reports false for unknown ids.
func (e *Engine) Discard(ctx context.Context, localID string) bool {
	err := e.queue.DeletePending(ctx, localID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logrus.WithError(err).WithField("local_id", localID).Warn("discard pending record")
		}
		return false
	}
	e.emit()
	return true
}

// Subscribe returns a channel of engine states; slow readers miss updates.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 16)
	e.listenersMu.Lock()
	e.listeners[ch] = struct{}{}
	e.listenersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.listenersMu.Lock()
			delete(e.listeners, ch)
			e.listenersMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) emit() {
	st := e.Status()
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	for ch := range e.listeners {
		select {
		case ch <- st:
		default:
		}
	}
}

func toActivity(rec storage.PendingActivity, owner string) activity.Activity {
	return activity.Activity{
		UserID:        owner,
		Name:          rec.Name,
		Type:          rec.Type,
		DistanceKm:    rec.DistanceKm,
		DurationSecs:  rec.DurationSecs,
		StartTime:     rec.StartTime,
		EndTime:       rec.EndTime,
		MapPolyline:   rec.MapPolyline,
		ElevationGain: rec.ElevationGain,
		AvgHR:         rec.AvgHR,
		MaxHR:         rec.MaxHR,
		Description:   rec.Description,
	}
}

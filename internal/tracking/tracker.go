package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phcodesage/trail-zap/internal/config"
	"github.com/phcodesage/trail-zap/internal/location"
	"github.com/phcodesage/trail-zap/internal/shared/geo"
	"github.com/phcodesage/trail-zap/internal/shared/schedule"
	"github.com/phcodesage/trail-zap/internal/storage"
)

var (
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrStreamUnavailable   = errors.New("location stream unavailable")
)

// newTimer builds the duration tick and auto-save timers.
var newTimer = schedule.NewPeriodic

// SnapshotStore is the key/value slot the session snapshot lives in.
type SnapshotStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Options struct {
	MinDisplacementM   float64
	MinSampleInterval  time.Duration
	TickInterval       time.Duration
	AutoSaveInterval   time.Duration
	SimplifyToleranceM float64
	FixTimeout         time.Duration
	StoreTimeout       time.Duration
}

func DefaultOptions() Options {
	return Options{
		MinDisplacementM:   3,
		TickInterval:       time.Second,
		AutoSaveInterval:   10 * time.Second,
		SimplifyToleranceM: 5,
		FixTimeout:         15 * time.Second,
		StoreTimeout:       5 * time.Second,
	}
}

func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	if cfg.LocationMinDisplacementM > 0 {
		opts.MinDisplacementM = cfg.LocationMinDisplacementM
	}
	opts.MinSampleInterval = cfg.LocationMinInterval
	if cfg.AutoSaveInterval > 0 {
		opts.AutoSaveInterval = cfg.AutoSaveInterval
	}
	if cfg.SimplifyToleranceM > 0 {
		opts.SimplifyToleranceM = cfg.SimplifyToleranceM
	}
	if cfg.LocationFixTimeout > 0 {
		opts.FixTimeout = cfg.LocationFixTimeout
	}
	return opts
}

// Tracker owns the single active session. Every mutation happens under mu,
// so samples, ticks and commands apply one at a time in arrival order.
type Tracker struct {
	source location.Source
	store  SnapshotStore
	opts   Options
	now    func() time.Time

	mu           sync.Mutex
	state        State
	starting     bool
	activityType ActivityType
	startTime    time.Time
	duration     time.Duration
	distanceM    float64
	elevationM   float64
	lastAltitude float64
	points       []TrackPoint
	current      *location.Position
	recoverable  *Snapshot

	sub      location.Subscription
	ticker   *schedule.Periodic
	autosave *schedule.Periodic
	// epoch changes whenever the timers are torn down so a tick that was
	// already waiting on mu does nothing.
	epoch uint64

	// saveGen is bumped when the slot is cleared; writes carrying an older
	// generation are dropped.
	saveMu  sync.Mutex
	saveGen atomic.Uint64

	listenersMu sync.Mutex
	listeners   map[chan Event]struct{}
}

func NewTracker(source location.Source, store SnapshotStore, opts Options) *Tracker {
	return &Tracker{
		source:       source,
		store:        store,
		opts:         opts,
		now:          time.Now,
		activityType: ActivityRun,
		listeners:    make(map[chan Event]struct{}),
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) SetActivityType(a ActivityType) bool {
	if !a.Valid() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return false
	}
	t.activityType = a
	t.emitLocked(EventActivityType)
	return true
}

// Start begins a new session. It returns false with a nil error when a
// session is already active.
func (t *Tracker) Start(ctx context.Context) (bool, error) {
	t.mu.Lock()
	if t.state != StateIdle || t.starting {
		t.mu.Unlock()
		return false, nil
	}
	t.starting = true
	t.mu.Unlock()

	started := false
	defer func() {
		if !started {
			t.mu.Lock()
			t.starting = false
			t.mu.Unlock()
		}
	}()

	fixCtx, cancel := context.WithTimeout(ctx, t.opts.FixTimeout)
	fix, err := t.source.CurrentFix(fixCtx)
	cancel()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}

	sub, err := t.source.Subscribe(ctx, t.subscribeOptions(&fix))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}

	t.mu.Lock()
	now := t.now()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	t.resetLocked()
	t.startTime = now
	t.lastAltitude = fix.Altitude
	t.points = append(t.points, trackPoint(fix, 0))
	t.current = &fix
	t.recoverable = nil
	t.sub = sub
	t.state = StateTracking
	t.starting = false
	started = true
	t.startTimersLocked()
	snap := t.snapshotLocked()
	gen := t.saveGen.Load()
	t.emitLocked(EventStarted)
	t.mu.Unlock()

	go t.forward(sub)
	t.persist(gen, snap)

	logrus.WithField("activity_type", snap.ActivityType).Info("tracking started")
	return true, nil
}

// OnLocationSample applies one position. It reports whether the sample was
// accepted as a new track point.
func (t *Tracker) OnLocationSample(p location.Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applySampleLocked(p)
}

func (t *Tracker) forward(sub location.Subscription) {
	for p := range sub.Positions() {
		t.mu.Lock()
		if t.sub == sub {
			t.applySampleLocked(p)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) applySampleLocked(p location.Position) bool {
	if t.state != StateTracking {
		return false
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = t.now()
	}
	if len(t.points) > 0 {
		last := t.points[len(t.points)-1]
		d := geo.DistanceMeters(last.Latitude, last.Longitude, p.Latitude, p.Longitude)
		if d < t.opts.MinDisplacementM {
			return false
		}
		t.distanceM += d
		if p.Altitude > t.lastAltitude {
			t.elevationM += p.Altitude - t.lastAltitude
		}
	}
	t.lastAltitude = p.Altitude
	t.points = append(t.points, trackPoint(p, t.distanceM))
	t.current = &p
	t.emitLocked(EventSample)
	return true
}

func (t *Tracker) tick(epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch || t.state != StateTracking {
		return
	}
	t.duration += t.opts.TickInterval
	t.emitLocked(EventTick)
}

func (t *Tracker) autoSave(epoch uint64) {
	t.mu.Lock()
	if t.epoch != epoch || t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	snap := t.snapshotLocked()
	gen := t.saveGen.Load()
	t.mu.Unlock()
	t.persist(gen, snap)
}

func (t *Tracker) Pause() bool {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return false
	}
	t.stopTimersLocked()
	if t.sub != nil {
		t.sub.Pause()
	}
	t.state = StatePaused
	snap := t.snapshotLocked()
	gen := t.saveGen.Load()
	t.emitLocked(EventPaused)
	t.mu.Unlock()

	t.persist(gen, snap)
	return true
}

// Resume continues a paused session. From Idle it first recovers the
// pending snapshot, if any.
func (t *Tracker) Resume(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateIdle {
		if t.recoverable == nil || t.starting {
			return false
		}
		t.recoverLocked()
		t.emitLocked(EventRecovered)
	}
	if t.state != StatePaused {
		return false
	}
	if t.sub != nil {
		t.sub.Resume()
	} else {
		sub, err := t.source.Subscribe(ctx, t.subscribeOptions(t.current))
		if err != nil {
			logrus.WithError(err).Warn("resume: location stream unavailable")
			return false
		}
		t.sub = sub
		go t.forward(sub)
	}
	t.state = StateTracking
	t.startTimersLocked()
	t.emitLocked(EventResumed)
	return true
}

// Stop finalizes the session and returns its summary.
func (t *Tracker) Stop() (Result, bool) {
	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return Result{}, false
	}
	t.teardownLocked()
	t.saveGen.Add(1)
	res := t.resultLocked(t.now())
	t.resetLocked()
	t.emitLocked(EventStopped)
	t.mu.Unlock()

	t.clearSnapshot()
	logrus.WithFields(logrus.Fields{
		"distance_km":   res.DistanceKm,
		"duration_secs": res.DurationSecs,
		"points":        len(res.Route),
	}).Info("tracking stopped")
	return res, true
}

func (t *Tracker) Discard() bool {
	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return false
	}
	t.teardownLocked()
	t.saveGen.Add(1)
	t.resetLocked()
	t.emitLocked(EventDiscarded)
	t.mu.Unlock()

	t.clearSnapshot()
	return true
}

// Shutdown releases the subscription and timers without ending the session.
// An active session is snapshotted so it is offered for recovery next time.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return
	}
	t.teardownLocked()
	snap := t.snapshotLocked()
	gen := t.saveGen.Load()
	t.mu.Unlock()
	t.persist(gen, snap)
}

// CheckRecovery inspects the snapshot slot left by a previous process.
func (t *Tracker) CheckRecovery(ctx context.Context) bool {
	data, err := t.store.Get(ctx, snapshotKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logrus.WithError(err).Warn("read session snapshot")
		}
		return false
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		logrus.WithError(err).Warn("discarding unreadable session snapshot")
		t.deleteSnapshot(ctx)
		return false
	}
	if snap.State == StateIdle {
		t.deleteSnapshot(ctx)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return false
	}
	t.recoverable = &snap
	t.emitLocked(EventRecoverable)
	logrus.WithFields(logrus.Fields{
		"state":         snap.State.String(),
		"duration_secs": snap.DurationSecs,
		"points":        len(snap.TrackPoints),
	}).Info("recoverable session found")
	return true
}

func (t *Tracker) Recoverable() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recoverable == nil {
		return Snapshot{}, false
	}
	return *t.recoverable, true
}

// RecoverSession rehydrates the recoverable snapshot into a Paused session.
func (t *Tracker) RecoverSession() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle || t.starting || t.recoverable == nil {
		return false
	}
	t.recoverLocked()
	t.emitLocked(EventRecovered)
	return true
}

func (t *Tracker) DiscardRecoveredSession() bool {
	t.mu.Lock()
	if t.recoverable == nil {
		t.mu.Unlock()
		return false
	}
	t.recoverable = nil
	t.saveGen.Add(1)
	t.emitLocked(EventDiscarded)
	t.mu.Unlock()

	t.clearSnapshot()
	return true
}

func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metricsLocked()
}

// Points returns a copy of the accepted track points.
func (t *Tracker) Points() []TrackPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackPoint, len(t.points))
	copy(out, t.points)
	return out
}

// Subscribe returns a channel of tracker events and a func to release it.
// Events are dropped for subscribers that fall behind.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	t.listenersMu.Lock()
	t.listeners[ch] = struct{}{}
	t.listenersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.listenersMu.Lock()
			delete(t.listeners, ch)
			t.listenersMu.Unlock()
			close(ch)
		})
	}
}

func (t *Tracker) emitLocked(kind EventKind) {
	ev := Event{Kind: kind, State: t.state, Metrics: t.metricsLocked(), At: t.now()}
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	for ch := range t.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (t *Tracker) metricsLocked() Metrics {
	m := Metrics{
		State:          t.state,
		ActivityType:   t.activityType,
		DurationSecs:   int64(t.duration / time.Second),
		DistanceM:      t.distanceM,
		DistanceKm:     t.distanceM / 1000,
		ElevationGainM: t.elevationM,
		PaceMinPerKm:   PaceMinPerKm(t.distanceM, t.duration),
		SpeedKmh:       SpeedKmh(t.distanceM, t.duration),
		PointCount:     len(t.points),
		Recoverable:    t.recoverable != nil,
	}
	if t.state != StateIdle {
		start := t.startTime
		m.StartTime = &start
	}
	if t.current != nil {
		cur := *t.current
		m.Current = &cur
	}
	return m
}

func (t *Tracker) snapshotLocked() Snapshot {
	points := make([]TrackPoint, len(t.points))
	copy(points, t.points)
	return Snapshot{
		SchemaVersion:  snapshotSchemaVersion,
		State:          t.state,
		ActivityType:   t.activityType,
		DurationSecs:   int64(t.duration / time.Second),
		DistanceMeters: t.distanceM,
		ElevationGain:  t.elevationM,
		StartTime:      t.startTime,
		SavedAt:        t.now(),
		TrackPoints:    points,
	}
}

func (t *Tracker) resultLocked(end time.Time) Result {
	coords := make([]geo.Coord, len(t.points))
	for i, p := range t.points {
		coords[i] = p.Coord()
	}
	route := geo.Simplify(coords, t.opts.SimplifyToleranceM)
	res := Result{
		ActivityType:   t.activityType,
		StartTime:      t.startTime,
		EndTime:        end,
		DurationSecs:   int64(t.duration / time.Second),
		DistanceM:      t.distanceM,
		DistanceKm:     t.distanceM / 1000,
		ElevationGainM: t.elevationM,
		PaceMinPerKm:   PaceMinPerKm(t.distanceM, t.duration),
		SpeedKmh:       SpeedKmh(t.distanceM, t.duration),
		Polyline:       geo.EncodePolyline(route),
		Route:          route,
		RawPointCount:  len(t.points),
	}
	if rect, ok := geo.Bounds(route); ok {
		res.Bounds = &rect
	}
	return res
}

func (t *Tracker) recoverLocked() {
	snap := *t.recoverable
	t.resetLocked()
	t.activityType = snap.ActivityType
	t.startTime = snap.StartTime
	t.duration = time.Duration(snap.DurationSecs) * time.Second
	t.distanceM = snap.DistanceMeters
	t.elevationM = snap.ElevationGain
	t.points = append(t.points, snap.TrackPoints...)
	if n := len(t.points); n > 0 {
		last := t.points[n-1]
		t.lastAltitude = last.Altitude
		t.current = &location.Position{
			Latitude:  last.Latitude,
			Longitude: last.Longitude,
			Altitude:  last.Altitude,
			Speed:     last.Speed,
			Accuracy:  last.Accuracy,
			Timestamp: last.Timestamp,
		}
	}
	t.state = StatePaused
	t.recoverable = nil
}

func (t *Tracker) startTimersLocked() {
	t.epoch++
	epoch := t.epoch
	t.ticker = newTimer(t.opts.TickInterval, func() { t.tick(epoch) })
	t.autosave = newTimer(t.opts.AutoSaveInterval, func() { t.autoSave(epoch) })
	t.ticker.Start()
	t.autosave.Start()
}

func (t *Tracker) stopTimersLocked() {
	t.epoch++
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.autosave != nil {
		t.autosave.Stop()
		t.autosave = nil
	}
}

func (t *Tracker) teardownLocked() {
	t.stopTimersLocked()
	if t.sub != nil {
		t.sub.Cancel()
		t.sub = nil
	}
}

func (t *Tracker) resetLocked() {
	t.state = StateIdle
	t.startTime = time.Time{}
	t.duration = 0
	t.distanceM = 0
	t.elevationM = 0
	t.lastAltitude = 0
	t.points = nil
	t.current = nil
}

func (t *Tracker) persist(gen uint64, snap Snapshot) {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		logrus.WithError(err).Error("encode session snapshot")
		return
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if t.saveGen.Load() != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.StoreTimeout)
	defer cancel()
	if err := t.store.Put(ctx, snapshotKey, data); err != nil {
		logrus.WithError(err).Error("write session snapshot")
	}
}

func (t *Tracker) clearSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.StoreTimeout)
	defer cancel()
	t.deleteSnapshot(ctx)
}

func (t *Tracker) deleteSnapshot(ctx context.Context) {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if err := t.store.Delete(ctx, snapshotKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logrus.WithError(err).Error("clear session snapshot")
	}
}

// subscribeOptions filters the stream against origin, the last accepted
// point, so the source and the tracker measure displacement from the same
// place.
func (t *Tracker) subscribeOptions(origin *location.Position) location.SubscribeOptions {
	opts := location.SubscribeOptions{
		MinDisplacementM: t.opts.MinDisplacementM,
		MinInterval:      t.opts.MinSampleInterval,
	}
	if origin != nil {
		o := *origin
		opts.Origin = &o
	}
	return opts
}

func trackPoint(p location.Position, distance float64) TrackPoint {
	return TrackPoint{
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
		Altitude:          p.Altitude,
		Speed:             p.Speed,
		Accuracy:          p.Accuracy,
		Timestamp:         p.Timestamp,
		DistanceFromStart: distance,
	}
}

package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/phcodesage/trail-zap/internal/shared/geo"
	"github.com/tkrajina/gpxgo/gpx"
)

var ErrEmptyTrack = errors.New("gpx file has no track points")

// Replay is a Source that plays back a recorded GPX track, one point per
// interval, stamping each point with the wall clock.
type Replay struct {
	points   []Position
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cursor int
}

func LoadGPX(path string, interval time.Duration) (*Replay, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return newReplay(g, interval)
}

func ParseGPX(data []byte, interval time.Duration) (*Replay, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	return newReplay(g, interval)
}

func newReplay(g *gpx.GPX, interval time.Duration) (*Replay, error) {
	var raw []gpx.GPXPoint
	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			raw = append(raw, segment.Points...)
		}
	}
	if len(raw) == 0 {
		for _, route := range g.Routes {
			raw = append(raw, route.Points...)
		}
	}
	if len(raw) == 0 {
		return nil, ErrEmptyTrack
	}

	points := make([]Position, 0, len(raw))
	for i, pt := range raw {
		p := Position{
			Latitude:  pt.Latitude,
			Longitude: pt.Longitude,
			Timestamp: pt.Timestamp,
		}
		if pt.Elevation.NotNull() {
			p.Altitude = pt.Elevation.Value()
		}
		if i > 0 {
			prev := raw[i-1]
			if dt := pt.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
				p.Speed = geo.DistanceMeters(prev.Latitude, prev.Longitude, pt.Latitude, pt.Longitude) / dt
			}
		}
		points = append(points, p)
	}

	return &Replay{points: points, interval: interval, now: time.Now}, nil
}

// Len is the number of points in the replayed track.
func (r *Replay) Len() int {
	return len(r.points)
}

func (r *Replay) CurrentFix(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, ErrNoFix
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.points[r.cursor]
	p.Timestamp = r.now()
	return p, nil
}

func (r *Replay) Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscription(opts, nil)
	go r.play(sub)
	return sub, nil
}

func (r *Replay) play(sub *subscription) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			p, ok := r.advance()
			if !ok {
				return
			}
			sub.offer(p)
		}
	}
}

func (r *Replay) advance() (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor+1 >= len(r.points) {
		return Position{}, false
	}
	r.cursor++
	p := r.points[r.cursor]
	p.Timestamp = r.now()
	return p, true
}

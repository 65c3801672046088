package location

import (
	"sync"
	"time"

	"github.com/phcodesage/trail-zap/internal/shared/geo"
	"github.com/sirupsen/logrus"
)

const subscriptionBuffer = 64

type subscription struct {
	opts SubscribeOptions
	ch   chan Position
	done chan struct{}

	mu        sync.Mutex
	paused    bool
	cancelled bool
	last      *Position
	onCancel  func()
}

func newSubscription(opts SubscribeOptions, onCancel func()) *subscription {
	s := &subscription{
		opts:     opts,
		ch:       make(chan Position, subscriptionBuffer),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
	if opts.Origin != nil {
		// only the origin's place filters, not its time
		origin := *opts.Origin
		origin.Timestamp = time.Time{}
		s.last = &origin
	}
	return s
}

func (s *subscription) Positions() <-chan Position {
	return s.ch
}

func (s *subscription) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *subscription) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *subscription) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	close(s.done)
	close(s.ch)
	onCancel := s.onCancel
	s.mu.Unlock()

	if onCancel != nil {
		onCancel()
	}
}

// offer delivers p unless the subscription is paused, cancelled, or p is
// too close in space or time to the last delivered position (or the
// origin, before the first delivery).
func (s *subscription) offer(p Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.paused {
		return false
	}
	if s.last != nil {
		if s.opts.MinDisplacementM > 0 &&
			geo.DistanceMeters(s.last.Latitude, s.last.Longitude, p.Latitude, p.Longitude) < s.opts.MinDisplacementM {
			return false
		}
		if s.opts.MinInterval > 0 && p.Timestamp.Sub(s.last.Timestamp) < s.opts.MinInterval {
			return false
		}
	}

	select {
	case s.ch <- p:
		s.last = &p
		return true
	default:
		logrus.Warn("location subscription buffer full, dropping position")
		return false
	}
}

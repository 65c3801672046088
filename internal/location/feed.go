package location

import (
	"context"
	"sync"
	"time"
)

// Feed is a Source driven by positions pushed from the platform shell.
type Feed struct {
	maxFixAge time.Duration
	now       func() time.Time

	mu      sync.Mutex
	last    *Position
	subs    map[*subscription]struct{}
	waiters map[chan Position]struct{}
}

// NewFeed returns a Feed. CurrentFix only reuses a pushed position younger
// than maxFixAge; zero accepts any age.
func NewFeed(maxFixAge time.Duration) *Feed {
	return &Feed{
		maxFixAge: maxFixAge,
		now:       time.Now,
		subs:      map[*subscription]struct{}{},
		waiters:   map[chan Position]struct{}{},
	}
}

// Push records p as the latest fix and fans it out to waiters and
// subscriptions. A zero timestamp is stamped with the current time.
func (f *Feed) Push(p Position) {
	if p.Timestamp.IsZero() {
		p.Timestamp = f.now()
	}

	f.mu.Lock()
	f.last = &p
	for w := range f.waiters {
		w <- p
		delete(f.waiters, w)
	}
	subs := make([]*subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.offer(p)
	}
}

func (f *Feed) CurrentFix(ctx context.Context) (Position, error) {
	f.mu.Lock()
	if f.last != nil && (f.maxFixAge == 0 || f.now().Sub(f.last.Timestamp) <= f.maxFixAge) {
		p := *f.last
		f.mu.Unlock()
		return p, nil
	}
	w := make(chan Position, 1)
	f.waiters[w] = struct{}{}
	f.mu.Unlock()

	select {
	case p := <-w:
		return p, nil
	case <-ctx.Done():
		f.mu.Lock()
		delete(f.waiters, w)
		f.mu.Unlock()
		// Push may have raced the deadline.
		select {
		case p := <-w:
			return p, nil
		default:
		}
		return Position{}, ErrNoFix
	}
}

func (f *Feed) Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sub *subscription
	sub = newSubscription(opts, func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
	})

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub, nil
}

// Subscribers reports the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

package location

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFeedCurrentFixWaitsForPush(t *testing.T) {
	feed := NewFeed(0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		feed.Push(Position{Latitude: -6.2, Longitude: 106.8})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := feed.CurrentFix(ctx)
	if err != nil {
		t.Fatalf("current fix: %v", err)
	}
	if p.Latitude != -6.2 || p.Timestamp.IsZero() {
		t.Fatalf("unexpected fix %+v", p)
	}
}

func TestFeedCurrentFixTimeout(t *testing.T) {
	feed := NewFeed(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := feed.CurrentFix(ctx); !errors.Is(err, ErrNoFix) {
		t.Fatalf("expected ErrNoFix, got %v", err)
	}
}

func TestFeedCurrentFixStale(t *testing.T) {
	feed := NewFeed(time.Minute)
	feed.Push(Position{Latitude: 1, Longitude: 1, Timestamp: time.Now().Add(-time.Hour)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := feed.CurrentFix(ctx); !errors.Is(err, ErrNoFix) {
		t.Fatalf("expected stale fix to be rejected, got %v", err)
	}

	feed.Push(Position{Latitude: 2, Longitude: 2})
	p, err := feed.CurrentFix(context.Background())
	if err != nil || p.Latitude != 2 {
		t.Fatalf("expected fresh fix, got %+v %v", p, err)
	}
}

func TestFeedSubscriptionFilters(t *testing.T) {
	feed := NewFeed(0)
	sub, err := feed.Subscribe(context.Background(), SubscribeOptions{MinDisplacementM: 3})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	base := time.Now()
	feed.Push(Position{Latitude: 0, Longitude: 0, Timestamp: base})
	feed.Push(Position{Latitude: 0, Longitude: 0.00001, Timestamp: base.Add(time.Second)}) // ~1.1 m
	feed.Push(Position{Latitude: 0, Longitude: 0.0001, Timestamp: base.Add(2 * time.Second)})

	got := drain(sub, 2)
	if len(got) != 2 || got[1].Longitude != 0.0001 {
		t.Fatalf("expected near sample filtered, got %+v", got)
	}
}

func TestFeedSubscriptionFiltersFromOrigin(t *testing.T) {
	feed := NewFeed(0)
	base := time.Now()
	origin := Position{Latitude: 0, Longitude: 0, Timestamp: base}
	sub, err := feed.Subscribe(context.Background(), SubscribeOptions{MinDisplacementM: 3, MinInterval: time.Minute, Origin: &origin})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	feed.Push(Position{Latitude: 0, Longitude: 0.00002, Timestamp: base.Add(time.Second)}) // ~2.2 m from origin
	feed.Push(Position{Latitude: 0, Longitude: 0.00004, Timestamp: base.Add(2 * time.Second)})

	got := drain(sub, 2)
	if len(got) != 1 || got[0].Longitude != 0.00004 {
		t.Fatalf("expected only the sample 3 m past the origin, got %+v", got)
	}
}

func TestFeedSubscriptionPauseResumeCancel(t *testing.T) {
	feed := NewFeed(0)
	sub, _ := feed.Subscribe(context.Background(), SubscribeOptions{})
	if feed.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}

	sub.Pause()
	feed.Push(Position{Latitude: 1})
	sub.Resume()
	feed.Push(Position{Latitude: 2})

	got := drain(sub, 1)
	if len(got) != 1 || got[0].Latitude != 2 {
		t.Fatalf("expected paused position dropped, got %+v", got)
	}

	sub.Cancel()
	sub.Cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("expected subscriber removed")
	}
	if _, ok := <-sub.Positions(); ok {
		t.Fatalf("expected closed channel")
	}
	feed.Push(Position{Latitude: 3})
}

func TestFeedSubscribeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFeed(0).Subscribe(ctx, SubscribeOptions{}); err == nil {
		t.Fatalf("expected error")
	}
}

func drain(sub Subscription, n int) []Position {
	var out []Position
	timeout := time.After(200 * time.Millisecond)
	for len(out) < n {
		select {
		case p, ok := <-sub.Positions():
			if !ok {
				return out
			}
			out = append(out, p)
		case <-timeout:
			return out
		}
	}
	return out
}

package location

import (
	"context"
	"errors"
	"time"
)

var ErrNoFix = errors.New("no location fix available")

type Position struct {
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64   `json:"altitude"`
	Speed     float64   `json:"speed"`
	Accuracy  float64   `json:"accuracy" validate:"gte=0"`
	Timestamp time.Time `json:"timestamp"`
}

type SubscribeOptions struct {
	MinDisplacementM float64
	MinInterval      time.Duration
	// Origin is the place the first delivery must be MinDisplacementM
	// away from, normally the caller's last accepted point. Nil lets the
	// first position through unfiltered.
	Origin *Position
}

// Source is a platform location provider.
type Source interface {
	// CurrentFix returns one fresh fix, or ErrNoFix once ctx is done.
	CurrentFix(ctx context.Context) (Position, error)
	// Subscribe opens a position stream. ctx bounds the call, not the
	// lifetime of the subscription; use Cancel for that.
	Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error)
}

// Subscription is a cancellable position stream. Positions arriving while
// paused are dropped. All methods are idempotent.
type Subscription interface {
	Positions() <-chan Position
	Pause()
	Resume()
	Cancel()
}

package activity

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

func changedChannel(ownerID string) string {
	return "activities:" + ownerID + ":changed"
}

func (s *Service) notify(ctx context.Context, ownerID string) {
	if s.redis == nil || ownerID == "" {
		return
	}
	if err := s.redis.Publish(ctx, changedChannel(ownerID), "1").Err(); err != nil {
		logrus.WithError(err).WithField("owner", ownerID).Warn("publish activity change")
	}
}

// StreamByOwner emits the owner's activity list now, on every poll interval
// and whenever a change is announced. List errors are logged and the stream
// carries on with the next trigger. The channel closes when ctx ends.
func (s *Service) StreamByOwner(ctx context.Context, ownerID string) <-chan []Activity {
	out := make(chan []Activity, 1)
	go func() {
		defer close(out)

		var changed <-chan struct{}
		if s.redis != nil {
			pubsub := s.redis.Subscribe(ctx, changedChannel(ownerID))
			defer pubsub.Close()
			sig := make(chan struct{}, 1)
			go func() {
				for range pubsub.Channel() {
					select {
					case sig <- struct{}{}:
					default:
					}
				}
			}()
			changed = sig
		}

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			list, err := s.List(ctx, Filter{OwnerID: ownerID, Limit: maxLimit})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logrus.WithError(err).WithField("owner", ownerID).Warn("activity stream list failed")
			} else {
				select {
				case out <- list:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-changed:
			}
		}
	}()
	return out
}

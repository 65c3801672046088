package db

import (
	"time"

	"github.com/phcodesage/trail-zap/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured. The client dials
// lazily, so an unreachable server only shows up on first use.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		ClientName:  "trailzap",
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		MaxRetries:  1,
	})
}

package server

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/phcodesage/trail-zap/internal/activity"
	"github.com/phcodesage/trail-zap/internal/auth"
	"github.com/phcodesage/trail-zap/internal/config"
	"github.com/phcodesage/trail-zap/internal/connectivity"
	"github.com/phcodesage/trail-zap/internal/db"
	"github.com/phcodesage/trail-zap/internal/location"
	"github.com/phcodesage/trail-zap/internal/storage"
	"github.com/phcodesage/trail-zap/internal/stream"
	"github.com/phcodesage/trail-zap/internal/syncer"
	"github.com/phcodesage/trail-zap/internal/tracking"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Local  *storage.Store
	Stream *stream.Hub

	Identity   *auth.Identity
	Feed       *location.Feed
	Tracker    *tracking.Tracker
	Network    *connectivity.Monitor
	Activities *activity.Service
	Sync       *syncer.Engine
}

// NewServer wires the services. pg and redisClient may be nil; local is
// required.
func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, local *storage.Store) (*Server, error) {
	source, feed, err := newLocationSource(cfg)
	if err != nil {
		return nil, err
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	var remote db.Querier
	if pg != nil {
		remote = pg
	}

	s := &Server{
		App:        app,
		Cfg:        cfg,
		DB:         pg,
		Redis:      redisClient,
		Local:      local,
		Stream:     stream.NewHub(redisClient, cfg.DeviceID),
		Identity:   auth.NewIdentity(cfg.JWTSecret, local),
		Feed:       feed,
		Tracker:    tracking.NewTracker(source, local, tracking.OptionsFromConfig(cfg)),
		Network:    connectivity.NewFromConfig(cfg),
		Activities: activity.NewService(remote, redisClient, cfg.ActivityStreamPollInterval),
	}
	s.Sync = syncer.NewEngine(local, s.Activities, s.Identity, s.Network, cfg.SyncStatusResetDelay)

	registerRoutes(s)
	return s, nil
}

func newLocationSource(cfg config.Config) (location.Source, *location.Feed, error) {
	if cfg.LocationSource == "gpx" {
		replay, err := location.LoadGPX(cfg.GPXReplayFile, cfg.GPXReplayInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("gpx location source: %w", err)
		}
		logrus.WithField("points", replay.Len()).Info("replaying GPX track as location source")
		return replay, nil, nil
	}
	feed := location.NewFeed(cfg.LocationMaxFixAge)
	return feed, feed, nil
}

// Start restores persisted state and launches the background loops. They
// stop when ctx ends.
func (s *Server) Start(ctx context.Context) {
	trackerEvents, stopTracker := s.Tracker.Subscribe()
	syncStates, stopSync := s.Sync.Subscribe()
	go func() {
		<-ctx.Done()
		stopTracker()
		stopSync()
	}()
	go stream.Forward(ctx, s.Stream, stream.TopicTracking, trackerEvents)
	go stream.Forward(ctx, s.Stream, stream.TopicSync, syncStates)

	s.Identity.Restore(ctx)
	s.Tracker.CheckRecovery(ctx)

	go s.Network.Run(ctx)
	go s.Sync.Run(ctx)
}

// Close releases what Start and NewServer acquired. An active session is
// left in the snapshot slot for recovery.
func (s *Server) Close() {
	s.Tracker.Shutdown()
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"online":   s.Network.Online(),
			"tracking": s.Tracker.State().String(),
			"sync":     s.Sync.Status().Status,
		})
	})

	requireUser := auth.RequireUser(s.Cfg.JWTSecret, s.Identity)

	auth.RegisterRoutes(s.App.Group("/auth"), s.Identity)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracker, s.Feed)
	syncer.RegisterRoutes(s.App.Group("/sync"), s.Sync)
	activity.RegisterRoutes(s.App.Group("/activities"), s.Activities, requireUser)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

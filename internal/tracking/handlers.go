package tracking

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/phcodesage/trail-zap/internal/location"
)

var validate = validator.New()

type activityTypeRequest struct {
	Type ActivityType `json:"type" validate:"required,oneof=run walk bike hike"`
}

// RegisterRoutes mounts the session controls. feed may be nil when positions
// come from another source, in which case POST /location is not served.
func RegisterRoutes(r fiber.Router, tracker *Tracker, feed *location.Feed) {
	r.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(tracker.Metrics())
	})

	r.Get("/points", func(c *fiber.Ctx) error {
		return c.JSON(tracker.Points())
	})

	r.Put("/activity-type", func(c *fiber.Ctx) error {
		var req activityTypeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "type must be one of run, walk, bike, hike")
		}
		if !tracker.SetActivityType(req.Type) {
			return fiber.NewError(fiber.StatusConflict, "activity type can only change while idle")
		}
		return c.JSON(tracker.Metrics())
	})

	r.Post("/start", func(c *fiber.Ctx) error {
		ok, err := tracker.Start(c.Context())
		switch {
		case errors.Is(err, ErrLocationUnavailable), errors.Is(err, ErrStreamUnavailable):
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		case !ok:
			return fiber.NewError(fiber.StatusConflict, "session already active")
		}
		return c.Status(fiber.StatusCreated).JSON(tracker.Metrics())
	})

	r.Post("/pause", func(c *fiber.Ctx) error {
		if !tracker.Pause() {
			return fiber.NewError(fiber.StatusConflict, "not tracking")
		}
		return c.JSON(tracker.Metrics())
	})

	r.Post("/resume", func(c *fiber.Ctx) error {
		if !tracker.Resume(c.Context()) {
			return fiber.NewError(fiber.StatusConflict, "nothing to resume")
		}
		return c.JSON(tracker.Metrics())
	})

	r.Post("/stop", func(c *fiber.Ctx) error {
		res, ok := tracker.Stop()
		if !ok {
			return fiber.NewError(fiber.StatusConflict, "no active session")
		}
		return c.JSON(res)
	})

	r.Post("/discard", func(c *fiber.Ctx) error {
		if !tracker.Discard() {
			return fiber.NewError(fiber.StatusConflict, "no active session")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/recovery", func(c *fiber.Ctx) error {
		snap, ok := tracker.Recoverable()
		if !ok {
			return c.JSON(fiber.Map{"recoverable": false})
		}
		return c.JSON(fiber.Map{"recoverable": true, "snapshot": snap})
	})

	r.Post("/recovery", func(c *fiber.Ctx) error {
		if !tracker.RecoverSession() {
			return fiber.NewError(fiber.StatusConflict, "no recoverable session")
		}
		return c.JSON(tracker.Metrics())
	})

	r.Delete("/recovery", func(c *fiber.Ctx) error {
		if !tracker.DiscardRecoveredSession() {
			return fiber.NewError(fiber.StatusConflict, "no recoverable session")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	if feed == nil {
		return
	}
	r.Post("/location", func(c *fiber.Ctx) error {
		var p location.Position
		if err := c.BodyParser(&p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		feed.Push(p)
		return c.SendStatus(fiber.StatusAccepted)
	})
}

package syncer

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, engine *Engine) {
	r.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(engine.Status())
	})

	r.Post("/", func(c *fiber.Ctx) error {
		report, ok := engine.SyncPending(c.Context())
		if !ok {
			return fiber.NewError(fiber.StatusConflict, "sync not possible: already running, offline or signed out")
		}
		return c.JSON(report)
	})

	r.Get("/pending", func(c *fiber.Ctx) error {
		items, err := engine.Pending(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(items)
	})

	r.Delete("/pending/:id", func(c *fiber.Ctx) error {
		if !engine.Discard(c.Context(), c.Params("id")) {
			return fiber.NewError(fiber.StatusNotFound, "pending activity not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/save", func(c *fiber.Ctx) error {
		var req SaveRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Session.StartTime.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "session required")
		}
		out, err := engine.Save(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		status := fiber.StatusCreated
		if !out.Remote {
			status = fiber.StatusAccepted
		}
		return c.Status(status).JSON(out)
	})
}

package activity

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		f := Filter{
			OwnerID: userID(c),
			Type:    c.Query("type"),
			Limit:   c.QueryInt("limit", defaultLimit),
			Offset:  c.QueryInt("offset", 0),
		}
		var err error
		if f.Since, err = queryTime(c, "since"); err != nil {
			return err
		}
		if f.Until, err = queryTime(c, "until"); err != nil {
			return err
		}
		activities, err := svc.List(c.Context(), f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(activities)
	})

	r.Get("/stats", authMiddleware, func(c *fiber.Ctx) error {
		stats, err := svc.Stats(c.Context(), userID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stats)
	})

	// Pushes the owner's activity list on connect and on every change.
	r.Get("/ws", authMiddleware, func(c *fiber.Ctx) error {
		if userID(c) == "" {
			return fiber.ErrUnauthorized
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(func(conn *websocket.Conn) {
		owner, _ := conn.Locals("user_id").(string)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for list := range svc.StreamByOwner(ctx, owner) {
			if err := conn.WriteJSON(list); err != nil {
				return
			}
		}
	}))

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		a, err := owned(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(a)
	})

	r.Get("/:id/geojson", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := owned(c, svc); err != nil {
			return err
		}
		body, err := svc.RouteGeoJSON(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(body)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		var patch Patch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if _, err := owned(c, svc); err != nil {
			return err
		}
		a, err := svc.Update(c.Context(), c.Params("id"), patch)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(a)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := owned(c, svc); err != nil {
			return err
		}
		if err := svc.Delete(c.Context(), c.Params("id")); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// owned loads the activity in the path, hiding other users' records as 404.
func owned(c *fiber.Ctx, svc *Service) (Activity, error) {
	a, err := svc.Get(c.Context(), c.Params("id"))
	if errors.Is(err, ErrNotFound) || (err == nil && a.UserID != userID(c)) {
		return Activity{}, fiber.NewError(fiber.StatusNotFound, ErrNotFound.Error())
	}
	if err != nil {
		return Activity{}, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return a, nil
}

func queryTime(c *fiber.Ctx, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, key+" must be RFC3339")
	}
	return t, nil
}

package auth

import (
	"github.com/gofiber/fiber/v2"
)

type signInRequest struct {
	Token string `json:"token"`
}

func RegisterRoutes(r fiber.Router, identity *Identity) {
	r.Post("/session", func(c *fiber.Ctx) error {
		var req signInRequest
		if err := c.BodyParser(&req); err != nil || req.Token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "token required")
		}
		userID, err := identity.SignIn(c.Context(), req.Token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return c.JSON(fiber.Map{"user_id": userID})
	})

	r.Delete("/session", func(c *fiber.Ctx) error {
		if err := identity.SignOut(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/session", func(c *fiber.Ctx) error {
		userID, ok := identity.UserID()
		if !ok {
			return c.JSON(fiber.Map{"authenticated": false})
		}
		return c.JSON(fiber.Map{"authenticated": true, "user_id": userID})
	})
}

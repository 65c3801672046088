package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserKey is the fiber.Locals key carrying the authenticated owner id.
const UserKey = "user_id"

// RequireUser authenticates a request by its bearer token. Without an
// Authorization header it falls back to the identity signed in on this
// device, if one was given.
func RequireUser(secret string, identity *Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			if identity == nil {
				return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
			}
			userID, ok := identity.UserID()
			if !ok {
				return fiber.NewError(fiber.StatusUnauthorized, "not signed in")
			}
			c.Locals(UserKey, userID)
			return c.Next()
		}

		claims, err := ValidateToken(secret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(UserKey, claims.UserID)
		return c.Next()
	}
}

func bearerFromHeader(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

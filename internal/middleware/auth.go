package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/utils/jwt"
)

const userKey = "user"

// Protected requires a valid bearer token and stores its claims in Locals.
func Protected(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			return apperr.New(apperr.ErrUnauthorized, "missing bearer token")
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			return apperr.Wrap(apperr.ErrUnauthorized, err, "invalid or expired token")
		}

		c.Locals(userKey, claims)
		return c.Next()
	}
}

// CurrentUser returns the claims stored by Protected.
func CurrentUser(c *fiber.Ctx) (*jwt.Claims, error) {
	claims, ok := c.Locals(userKey).(*jwt.Claims)
	if !ok || claims == nil {
		return nil, apperr.New(apperr.ErrUnauthorized, "not signed in")
	}
	return claims, nil
}

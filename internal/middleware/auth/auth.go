package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	UserIDHeader = "X-User-ID"
	LocalsKey    = "userID"
	maxUserIDLen = 128
)

// RequireUser rejects requests without an X-User-ID header. Authentication
// happens upstream; this only carries the identity into handlers.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(UserIDHeader))
		if userID == "" || len(userID) > maxUserIDLen {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid user",
			})
		}
		c.Locals(LocalsKey, userID)
		return c.Next()
	}
}

func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(LocalsKey).(string)
	return userID
}

package middleware

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKey guards operator endpoints (rate changes, role grants) behind a
// shared key checked against its bcrypt hash from config, so the plaintext
// never lives in the environment of the running service.
func AdminKey(keyHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "admin endpoints are not configured")
		}
		key := c.Get(adminKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing admin key")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			return fiber.NewError(fiber.StatusForbidden, "invalid admin key")
		}
		return c.Next()
	}
}

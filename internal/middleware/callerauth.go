package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yield-pay/yield_pay/internal/auth"
)

// CallerAuth authenticates the ledger account behind a request. The bearer
// token's subject becomes the caller identity used by transfer, deposit and
// redeem handlers (available via c.Locals("caller")). How accounts obtain
// tokens is outside the ledger core; the dev token route is one issuer.
func CallerAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		account, err := auth.Verify(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals("caller", account)
		return c.Next()
	}
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yield-pay/yield_pay/internal/gateway"
)

// RegisterGatewayRoutes mounts the authenticated custody gateway operations.
func RegisterGatewayRoutes(r fiber.Router, h *gateway.Handler) {
	g := r.Group("/gateway")
	g.Post("/deposit", h.Deposit)
	g.Post("/redeem", h.Redeem)
}

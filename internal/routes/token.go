package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yield-pay/yield_pay/internal/token"
)

// RegisterTokenReadRoutes mounts the public, unauthenticated token reads.
func RegisterTokenReadRoutes(r fiber.Router, h *token.Handler) {
	g := r.Group("/token")
	g.Get("/rate", h.Rate)
	g.Get("/rate/:account", h.AccountRate)
	g.Get("/supply", h.Supply)
	g.Get("/balance/:account", h.Balance)
	g.Get("/principal/:account", h.Principal)
}

// RegisterTokenRoutes mounts the authenticated token operations.
func RegisterTokenRoutes(r fiber.Router, h *token.Handler) {
	g := r.Group("/token")
	g.Post("/transfer", h.Transfer)
	g.Post("/transfer-from", h.TransferFrom)
	g.Post("/approve", h.Approve)
}

// RegisterAdminRoutes mounts the operator endpoints behind the admin key.
func RegisterAdminRoutes(r fiber.Router, h *token.Handler) {
	r.Put("/rate", h.SetRate)
	r.Post("/minters", h.GrantMinter)
}

package routes

import (
	"math/big"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/yield-pay/yield_pay/internal/auth"
	"github.com/yield-pay/yield_pay/internal/config"
	"github.com/yield-pay/yield_pay/internal/gateway"
	"github.com/yield-pay/yield_pay/internal/token"
)

// RegisterDevRoutes mounts development-only conveniences: a bearer token
// issuer and a native-currency faucet. Never mounted outside dev environments.
func RegisterDevRoutes(r fiber.Router, cfg config.Config, bank gateway.Bank) {
	r.Post("/auth/token", func(c *fiber.Ctx) error {
		var req struct {
			Account string `json:"account"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		tok, err := auth.Issue(req.Account, []byte(cfg.TokenSecret), cfg.TokenTTL)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"token":      tok,
			"account":    req.Account,
			"expires_in": cfg.TokenTTL.Seconds(),
		})
	})

	r.Post("/bank/faucet", func(c *fiber.Ctx) error {
		var req struct {
			Account string `json:"account"`
			Amount  string `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if req.Account == "" {
			return fiber.NewError(http.StatusBadRequest, "account is required")
		}
		amount, err := token.ParseAmount(req.Amount)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if amount.Sign() <= 0 || amount.Cmp(token.MaxAmount) >= 0 {
			return fiber.NewError(http.StatusBadRequest, "amount out of range")
		}

		current, err := bank.Balance(c.UserContext(), req.Account)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		gateway.SeedFunds(bank, req.Account, new(big.Int).Add(current, amount))

		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"account": req.Account,
			"amount":  amount.String(),
			"display": token.Display(amount),
		})
	})
}

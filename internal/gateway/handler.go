package gateway

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/yield-pay/yield_pay/internal/token"
)

// Handler exposes custody gateway HTTP endpoints.
type Handler struct {
	gateway *Gateway
}

// NewHandler builds a gateway HTTP handler.
func NewHandler(gateway *Gateway) *Handler {
	return &Handler{gateway: gateway}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// Deposit collects native currency from the caller and mints tokens 1:1.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	caller := token.Caller(c)
	if err := h.gateway.Deposit(c.UserContext(), caller, amount); err != nil {
		return gatewayError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account": caller,
		"amount":  amount.String(),
		"display": token.Display(amount),
	})
}

// Redeem burns the caller's tokens and pays out native currency. Amount "max"
// redeems the whole effective balance.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	caller := token.Caller(c)
	burned, err := h.gateway.Redeem(c.UserContext(), caller, amount)
	if err != nil {
		return gatewayError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account": caller,
		"amount":  burned.String(),
		"display": token.Display(burned),
	})
}

// Info describes the gateway and its custody reserves.
func (h *Handler) Info(c *fiber.Ctx) error {
	reserves, err := h.gateway.Reserves(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	supply, err := h.gateway.Ledger().TotalSupply(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"gateway":  h.gateway.Identity(),
		"reserves": reserves.String(),
		"supply":   supply.String(),
	})
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, ErrRedeemInProgress):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrRedeemTransferFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, token.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidDeposit), errors.Is(err, token.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, token.ErrUnauthorizedCaller):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

package token

import (
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes token HTTP endpoints.
type Handler struct {
	ledger *Ledger
}

// NewHandler builds a token HTTP handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type transferFromRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Rate returns the global interest rate.
func (h *Handler) Rate(c *fiber.Ctx) error {
	rate, err := h.ledger.GlobalRate(c.UserContext())
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{"rate": rate.String()})
}

// AccountRate returns the rate snapshot locked in for an account.
func (h *Handler) AccountRate(c *fiber.Ctx) error {
	rate, err := h.ledger.AccountRate(c.UserContext(), c.Params("account"))
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{"account": c.Params("account"), "rate": rate.String()})
}

// Supply returns the settled total supply.
func (h *Handler) Supply(c *fiber.Ctx) error {
	supply, err := h.ledger.TotalSupply(c.UserContext())
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{"supply": supply.String(), "display": Display(supply)})
}

// Balance returns the effective, interest-bearing balance of an account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	account := c.Params("account")
	balance, err := h.ledger.BalanceOf(c.UserContext(), account)
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{
		"account":   account,
		"balance":   balance.String(),
		"display":   Display(balance),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Principal returns the raw settled principal of an account.
func (h *Handler) Principal(c *fiber.Ctx) error {
	account := c.Params("account")
	principal, err := h.ledger.PrincipalBalanceOf(c.UserContext(), account)
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{
		"account":   account,
		"principal": principal.String(),
		"display":   Display(principal),
	})
}

// Transfer moves tokens from the authenticated caller to another account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	caller := Caller(c)
	if err := h.ledger.Transfer(c.UserContext(), caller, req.To, amount); err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"from": caller, "to": req.To, "amount": amount.String()})
}

// TransferFrom moves tokens on behalf of another account within the caller's
// allowance.
func (h *Handler) TransferFrom(c *fiber.Ctx) error {
	var req transferFromRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.ledger.TransferFrom(c.UserContext(), Caller(c), req.From, req.To, amount); err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"from": req.From, "to": req.To, "amount": amount.String()})
}

// Approve sets an allowance for a spender over the caller's balance.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	caller := Caller(c)
	if err := h.ledger.Approve(c.UserContext(), caller, req.Spender, amount); err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner": caller, "spender": req.Spender, "amount": amount.String()})
}

// SetRate updates the global interest rate. Mounted behind the admin key.
func (h *Handler) SetRate(c *fiber.Ctx) error {
	var req struct {
		Rate string `json:"rate"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, ok := new(big.Int).SetString(req.Rate, 10)
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "malformed rate")
	}
	if err := h.ledger.SetGlobalRate(c.UserContext(), h.ledger.Owner(), rate); err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"rate": rate.String()})
}

// GrantMinter authorizes an account to mint and burn. Mounted behind the
// admin key; this is the integration point for a bridge pool.
func (h *Handler) GrantMinter(c *fiber.Ctx) error {
	var req struct {
		Account string `json:"account"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Account == "" {
		return fiber.NewError(http.StatusBadRequest, "account is required")
	}
	if err := h.ledger.GrantMintBurn(c.UserContext(), h.ledger.Owner(), req.Account); err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"account": req.Account, "role": "mint_burn"})
}

// Caller returns the authenticated account set by the caller-auth middleware.
func Caller(c *fiber.Ctx) string {
	caller, _ := c.Locals("caller").(string)
	return caller
}

// ParseAmount decodes a raw base-10 amount of 1e18-scale units. The literal
// "max" is the whole-balance / unlimited sentinel.
func ParseAmount(s string) (*big.Int, error) {
	if strings.EqualFold(strings.TrimSpace(s), "max") {
		return new(big.Int).Set(MaxAmount), nil
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.New("malformed amount")
	}
	return amount, nil
}

// Display renders raw units as a human-readable token quantity.
func Display(v *big.Int) string {
	return decimal.NewFromBigInt(v, -18).String()
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthorizedCaller):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrRateChangeRejected):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientAllowance), errors.Is(err, ErrAmountOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/yield-pay/yield_pay/internal/config"
	"github.com/yield-pay/yield_pay/internal/gateway"
	"github.com/yield-pay/yield_pay/internal/middleware"
	"github.com/yield-pay/yield_pay/internal/notification"
	"github.com/yield-pay/yield_pay/internal/token"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Wiring exposes the composed core components so the caller can attach
// background jobs (the interest sweep) to the same instances the routes use.
type Wiring struct {
	Ledger  *token.Ledger
	Gateway *gateway.Gateway
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Wiring, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	ctx := context.Background()

	var store token.Store
	if d.DB != nil {
		pg := token.NewPostgresStore(d.DB)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate token store: %w", err)
		}
		store = pg
	} else {
		store = token.NewMemoryStore()
	}

	var notifier notification.Notifier
	if len(d.Cfg.KafkaBrokers) > 0 {
		notifier = notification.NewKafkaNotifier(d.Cfg.KafkaBrokers, d.Cfg.KafkaTopic)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	ledger, err := token.NewLedger(ctx, store, token.Options{
		Owner:    d.Cfg.OwnerAccount,
		BaseRate: d.Cfg.BaseRate,
		Notifier: notifier,
		Logger:   d.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build ledger: %w", err)
	}
	if err := ledger.GrantMintBurn(ctx, d.Cfg.OwnerAccount, d.Cfg.GatewayAccount); err != nil {
		return nil, fmt.Errorf("grant gateway role: %w", err)
	}

	// The bank stands in for the external native settlement rail; custody
	// balances live here.
	bank := gateway.NewMemoryBank()
	gw, err := gateway.New(ledger, bank, d.Cfg.GatewayAccount, notifier, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	tokenHandler := token.NewHandler(ledger)
	gatewayHandler := gateway.NewHandler(gw)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public reads
	RegisterTokenReadRoutes(api, tokenHandler)
	api.Get("/gateway/ledger", gatewayHandler.Info)

	// Dev conveniences: token issuance and native funds faucet.
	if d.Cfg.IsDev() {
		RegisterDevRoutes(api, d.Cfg, bank)
	}

	// Protected routes
	protected := api.Group("", middleware.CallerAuth([]byte(d.Cfg.TokenSecret)))
	RegisterTokenRoutes(protected, tokenHandler)
	RegisterGatewayRoutes(protected, gatewayHandler)

	// Operator routes
	admin := api.Group("/admin", middleware.AdminKey(d.Cfg.AdminKeyHash))
	RegisterAdminRoutes(admin, tokenHandler)

	return &Wiring{Ledger: ledger, Gateway: gw}, nil
}

package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/multiwallet/internal/account"
	"github.com/congo-pay/multiwallet/internal/auth"
	"github.com/congo-pay/multiwallet/internal/config"
	"github.com/congo-pay/multiwallet/internal/events"
	"github.com/congo-pay/multiwallet/internal/exchange"
	"github.com/congo-pay/multiwallet/internal/fraud"
	"github.com/congo-pay/multiwallet/internal/funding"
	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/middleware"
	"github.com/congo-pay/multiwallet/internal/notification"
	"github.com/congo-pay/multiwallet/internal/otp"
	"github.com/congo-pay/multiwallet/internal/payments"
	"github.com/congo-pay/multiwallet/internal/rates"
)

// Deps aggregates shared dependencies required to wire routes. Nil DB and
// Cache select in-memory backends; a nil Broker drops events.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Broker events.Publisher
	// Rates overrides the exchange rate source, mainly for tests.
	Rates  rates.Source
	Logger *slog.Logger
}

// Services exposes the wired services that run outside the HTTP path.
type Services struct {
	Accounts *account.Service
	Funding  *funding.Service
	Payments *payments.Service
	Exchange *exchange.Service
	Issuer   *auth.Issuer
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDevelopment() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	svc, err := buildServices(d)
	if err != nil {
		return nil, err
	}

	idempotent := func(c *fiber.Ctx) error { return c.Next() }
	var limiter *middleware.RateLimiter
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
		limiter = middleware.NewRateLimiter(d.Cache, "multiwallet:rate_limit")
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDOf(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	accounts := account.NewHandler(svc.Accounts, svc.Issuer)

	// Public routes
	RegisterAccountRoutes(api, accounts)
	loginLimit := middleware.RateLimit(limiter, "login", d.Cfg.LoginAttemptsPerMinute, time.Minute, d.Logger)
	RegisterAuthRoutes(api, auth.NewHandler(svc.Accounts, svc.Issuer), loginLimit)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(svc.Issuer))
	RegisterProfileRoutes(protected, accounts)
	RegisterFundingRoutes(protected, funding.NewHandler(svc.Funding), idempotent)
	confirmLimit := middleware.RateLimit(limiter, "confirm", d.Cfg.ConfirmAttemptsPerMinute, time.Minute, d.Logger)
	RegisterPaymentRoutes(protected, payments.NewHandler(svc.Payments), idempotent, confirmLimit)
	RegisterExchangeRoutes(protected, exchange.NewHandler(svc.Exchange), idempotent)

	return svc, nil
}

func buildServices(d Deps) (*Services, error) {
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var otpStore otp.Store
	if d.Cache != nil {
		otpStore = otp.NewRedisStore(d.Cache, "multiwallet:otp")
	} else {
		otpStore = otp.NewMemoryStore()
	}

	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if _, live := d.Broker.(*events.Producer); live {
		notifier = notification.NewQueueNotifier(d.Broker)
	}
	emitter := events.NewEmitter(d.Broker, d.Logger)

	source := d.Rates
	if source == nil {
		source = rates.NewHTTPSource(d.Cfg.RateAPIURL, 5*time.Second)
		if d.Cache != nil {
			source = rates.NewCachedSource(source, d.Cache, d.Cfg.RateCacheTTL, d.Logger)
		}
	}

	if d.Cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	detector := fraud.NewDetector()
	otps := otp.NewService(otpStore, notifier, d.Logger, d.Cfg.OTPTTL, nil)
	return &Services{
		Accounts: account.NewService(store, d.Logger),
		Funding:  funding.NewService(store, detector, emitter, d.Logger),
		Payments: payments.NewService(store, detector, otps, notifier, emitter, d.Logger),
		Exchange: exchange.NewService(store, source, emitter, d.Logger),
		Issuer:   auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.JWTTTL, d.Cfg.AppName),
	}, nil
}

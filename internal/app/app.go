package app

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/config"
	"github.com/wichananm65/referral-tracker/internal/leaderboard"
	"github.com/wichananm65/referral-tracker/internal/logger"
	"github.com/wichananm65/referral-tracker/internal/metrics"
	"github.com/wichananm65/referral-tracker/internal/referralcode"
	"github.com/wichananm65/referral-tracker/internal/user"
)

// Deps are the stores the HTTP application runs on. Cache may be nil.
type Deps struct {
	Users user.Repository
	Cache leaderboard.Cache
	Log   *logrus.Logger
}

type App struct {
	cfg   config.Config
	log   *logrus.Logger
	fiber *fiber.App
}

// New wires services and handlers and returns an app ready to listen.
func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Users == nil {
		return nil, errors.New("app: user repository is required")
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	codes, err := referralcode.NewRandom(cfg.App.ReferralCodeLength)
	if err != nil {
		return nil, err
	}

	board := leaderboard.NewService(deps.Users, deps.Cache, log)
	users := user.NewService(deps.Users, codes,
		user.WithInvalidator(board),
		user.WithLogger(log),
	)

	f := fiber.New(fiber.Config{
		AppName:               "referral-tracker",
		ReadTimeout:           cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout:          cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:           cfg.HTTP.IdleTimeout.Duration(),
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	f.Use(recover.New())
	f.Use(requestid.New())
	f.Use(cors.New(cors.Config{
		AllowOrigins: cfg.HTTP.CORSOrigin,
		AllowMethods: "GET,POST,HEAD,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	f.Use(logger.Middleware(log))
	f.Use(metrics.Middleware())
	f.Use(requestTimeout(cfg.HTTP.RequestTimeout.Duration()))

	f.Get("/health", health(users))
	f.Get("/metrics", metrics.Handler())

	leaderboard.NewHandler(board, log).RegisterPublicRoutes(f)
	user.NewHandler(users, log).RegisterPublicRoutes(f, authLimiter(cfg.HTTP.AuthRateLimit)...)

	return &App{cfg: cfg, log: log, fiber: f}, nil
}

func (a *App) Fiber() *fiber.App {
	return a.fiber
}

func (a *App) Listen() error {
	addr := a.cfg.HTTP.Addr()
	a.log.WithField("addr", addr).Info("http server listening")
	return a.fiber.Listen(addr)
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.fiber.ShutdownWithContext(ctx)
}

func health(users *user.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := users.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false})
		}
		return c.JSON(fiber.Map{"ok": true})
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/app"
	"github.com/wichananm65/referral-tracker/internal/cache"
	"github.com/wichananm65/referral-tracker/internal/config"
	"github.com/wichananm65/referral-tracker/internal/database"
	"github.com/wichananm65/referral-tracker/internal/leaderboard"
	"github.com/wichananm65/referral-tracker/internal/logger"
	"github.com/wichananm65/referral-tracker/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}
	log.WithField("env", cfg.App.Env).Info("config loaded")

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	defer db.Close()

	if cfg.DB.MigrateOnStart {
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := database.Migrate(migrateCtx, db, log)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("migrations")
		}
	}

	var (
		rdb        *redis.Client
		boardCache leaderboard.Cache
	)
	if cfg.Redis.Enabled() {
		redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		rdb, err = cache.NewRedis(redisCtx, cfg.Redis)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("redis")
		}
		defer rdb.Close()
		boardCache = cache.NewLeaderboardCache(rdb, cfg.Leaderboard.CacheTTL.Duration())
	} else {
		log.Info("redis not configured, leaderboard cache disabled")
	}

	application, err := app.New(cfg, app.Deps{
		Users: user.NewPostgresRepository(db),
		Cache: boardCache,
		Log:   log,
	})
	if err != nil {
		log.WithError(err).Fatal("app init")
	}

	go func() {
		if err := application.Listen(); err != nil {
			log.WithError(err).Fatal("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("server stopped")
}

// Command api runs the referral API on the in-memory store. Nothing is
// persisted; it is meant for local frontend work and demos.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/app"
	"github.com/wichananm65/referral-tracker/internal/config"
	"github.com/wichananm65/referral-tracker/internal/logger"
	"github.com/wichananm65/referral-tracker/internal/user"
)

func main() {
	cfg, err := config.LoadWithoutDatabase()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}

	application, err := app.New(cfg, app.Deps{
		Users: user.NewInMemoryRepository(nil),
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

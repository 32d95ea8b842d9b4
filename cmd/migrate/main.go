// Command migrate applies the embedded schema migrations.
//
//	migrate [up|down|status|version|redo|reset]
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/config"
	"github.com/wichananm65/referral-tracker/internal/database"
	"github.com/wichananm65/referral-tracker/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log, err := logger.New(cfg.App.LogLevel, "text")
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	defer db.Close()

	if err := database.Run(ctx, db, log, command, args...); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	log.WithField("command", command).Info("migrations done")
}

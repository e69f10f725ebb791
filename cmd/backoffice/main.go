package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"meeple-backoffice/pkg/config"
	"meeple-backoffice/pkg/db"
	"meeple-backoffice/pkg/health"
	"meeple-backoffice/pkg/logger"
	"meeple-backoffice/pkg/redis"
	"meeple-backoffice/pkg/server"
	"meeple-backoffice/pkg/task"
	"meeple-backoffice/services/bootstrap"
	"meeple-backoffice/services/consumer"
	"meeple-backoffice/services/ledger"
	"meeple-backoffice/services/notify"
	"meeple-backoffice/services/user"
	"meeple-backoffice/services/webhook"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		fx.Provide(provideSnowflakeNode),
		server.Module,
		health.Module,
		bootstrap.Module,
		notify.Module,
		ledger.Module,
		user.Module,
		consumer.Module,
		webhook.Module,
		webhook.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

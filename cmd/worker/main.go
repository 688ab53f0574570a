package main

import (
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smmpanel/pkg/config"
	"smmpanel/pkg/db"
	"smmpanel/pkg/gen"
	"smmpanel/pkg/logger"
	"smmpanel/pkg/redis"
	"smmpanel/pkg/sequence"
	"smmpanel/pkg/task"
	"smmpanel/services/affiliate"
	"smmpanel/services/catalog"
	"smmpanel/services/funds"
	"smmpanel/services/order"
	"smmpanel/services/provider"
	"smmpanel/services/realtime"
	"smmpanel/services/user"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		task.Server,
		task.Scheduler,
		user.Module,
		provider.Module,
		catalog.Module,
		funds.Module,
		affiliate.Module,
		realtime.Module,
		order.Module,
		order.TaskModule,
		provider.TaskModule,
		fx.Invoke(registerSchedules),
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

func registerSchedules(cfg *config.Config, scheduler *asynq.Scheduler) error {
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.Provider.SyncInterval),
		asynq.NewTask(order.TypeSyncOrders, nil),
		asynq.Queue("default"),
	); err != nil {
		return err
	}

	_, err := scheduler.Register(
		"@every 1h",
		asynq.NewTask(provider.TypeSyncBalances, nil),
		asynq.Queue("low"),
	)
	return err
}

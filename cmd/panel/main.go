package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smmpanel/pkg/authz"
	"smmpanel/pkg/config"
	"smmpanel/pkg/db"
	"smmpanel/pkg/gen"
	"smmpanel/pkg/health"
	"smmpanel/pkg/logger"
	"smmpanel/pkg/redis"
	"smmpanel/pkg/sequence"
	"smmpanel/pkg/server"
	"smmpanel/pkg/task"
	"smmpanel/services/affiliate"
	"smmpanel/services/bootstrap"
	"smmpanel/services/catalog"
	"smmpanel/services/funds"
	"smmpanel/services/order"
	"smmpanel/services/provider"
	"smmpanel/services/realtime"
	"smmpanel/services/ticket"
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
		authz.Module,
		task.Client,
		server.Module,
		health.Module,
		bootstrap.Module,
		user.Module,
		user.HTTPModule,
		provider.Module,
		provider.HTTPModule,
		catalog.Module,
		catalog.HTTPModule,
		funds.Module,
		funds.HTTPModule,
		affiliate.Module,
		affiliate.HTTPModule,
		realtime.Module,
		realtime.HTTPModule,
		order.Module,
		order.HTTPModule,
		ticket.Module,
		ticket.HTTPModule,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
		),
		fx.Invoke(
			registerDBPlugins,
			registerMetricsRoute,
		),
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

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func registerDBPlugins(cfg *config.Config, gdb *gorm.DB) error {
	if err := db.Otel(gdb); err != nil {
		return err
	}
	return db.Metric(gdb, cfg.Database.DBName)
}

func registerMetricsRoute(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

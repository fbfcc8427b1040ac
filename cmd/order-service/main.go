package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"mercato/internal/pkg/bootstrap"
	"mercato/internal/pkg/httpclient"
	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
	"mercato/internal/pkg/redisx"
	"mercato/internal/scheduler"
	"mercato/internal/service/order/application"
	"mercato/internal/service/order/infrastructure"
	"mercato/internal/service/order/infrastructure/adapter"
	"mercato/internal/service/order/interfaces"
)

const (
	serviceName = "order-service"
	servicePort = 8080
)

// main 是组装根：创建并装配所有依赖，然后交给 bootstrap 托管生命周期。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo, err := infrastructure.NewGormOrderRepository(db)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize order repository")
	}

	redisClient := redisx.NewClient(cfg.Infra.Redis.Addr)
	guard := infrastructure.NewRedisVerificationGuard(redisClient)

	brokers := cfg.Infra.Kafka.Brokers
	delayLevel := cfg.App.VerificationDelayLevel
	gracePeriod, ok := scheduler.Levels[delayLevel]
	if !ok {
		logger.Logger.Fatal().Str("level", delayLevel).Msg("unknown verification delay level")
	}
	intents := infrastructure.NewKafkaIntentPublisher(brokers, delayLevel, gracePeriod)
	compensationWriter := mq.NewKafkaWriter(brokers, mq.TopicCompensate)
	notificationWriter := mq.NewKafkaWriter(brokers, mq.TopicNotifications)
	intentReader := mq.NewKafkaReader(brokers, mq.TopicOrderIntent, serviceName+"-verifier")

	var consumer *infrastructure.IntentConsumer
	consumerCtx, stopConsumer := context.WithCancel(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(serviceName)
			client := httpclient.NewClient(tracer, appCtx.Nacos)

			svc := application.NewOrderService(
				repo,
				tracer,
				adapter.NewWalletHTTPAdapter(client),
				adapter.NewWarehouseHTTPAdapter(client),
				adapter.NewCatalogHTTPAdapter(client),
				intents,
				infrastructure.NewKafkaCompensationPublisher(compensationWriter),
				infrastructure.NewKafkaNotificationPublisher(notificationWriter),
				guard,
			)

			interfaces.NewOrderHandler(svc).RegisterRoutes(appCtx.Mux)

			consumer = infrastructure.NewIntentConsumer(intentReader, svc)
			consumer.Start(consumerCtx)
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			if consumer != nil {
				consumer.Stop()
			}
			closeQuiet := func(c interface{ Close() error }) {
				if err := c.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("shutdown close failed")
				}
			}
			closeQuiet(intents)
			closeQuiet(compensationWriter)
			closeQuiet(notificationWriter)
			closeQuiet(redisClient)
		},
	})
}

package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"mercato/internal/pkg/bootstrap"
	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
	"mercato/internal/service/wallet/application"
	"mercato/internal/service/wallet/infrastructure"
	"mercato/internal/service/wallet/interfaces"
)

const (
	serviceName = "wallet-service"
	servicePort = 8081
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo, err := infrastructure.NewGormWalletRepository(db)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize wallet repository")
	}

	svc := application.NewWalletService(repo, otel.Tracer(serviceName))

	compensationReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, mq.TopicCompensate, serviceName+"-compensation")
	consumer := infrastructure.NewCompensationConsumer(compensationReader, svc)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewWalletHandler(svc).RegisterRoutes(appCtx.Mux)
			consumer.Start(consumerCtx)
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			consumer.Stop()
		},
	})
}

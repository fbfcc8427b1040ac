package main

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"mercato/internal/pkg/bootstrap"
	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
	"mercato/internal/pkg/redisx"
	"mercato/internal/service/catalog/infrastructure"
	"mercato/internal/service/catalog/interfaces"
)

const (
	serviceName = "catalog-service"
	servicePort = 8083
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo, err := infrastructure.NewGormCatalogRepository(db)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize catalog repository")
	}

	redisClient := redisx.NewClient(cfg.Infra.Redis.Addr)
	cache := infrastructure.NewRedisStockCache(redisClient)

	snapshotReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, mq.TopicInventorySnapshot, serviceName+"-snapshot")
	consumer := infrastructure.NewSnapshotConsumer(snapshotReader, cache)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewCatalogHandler(repo, cache).RegisterRoutes(appCtx.Mux)
			consumer.Start(consumerCtx)
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			consumer.Stop()
			if err := redisClient.Close(); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to close redis client")
			}
		},
	})
}

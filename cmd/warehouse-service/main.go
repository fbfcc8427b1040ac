package main

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"mercato/internal/pkg/bootstrap"
	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
	"mercato/internal/service/warehouse/application"
	"mercato/internal/service/warehouse/infrastructure"
	"mercato/internal/service/warehouse/interfaces"
	"mercato/internal/zookeeper"
)

const (
	serviceName = "warehouse-service"
	servicePort = 8082
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo, err := infrastructure.NewGormWarehouseRepository(db)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize warehouse repository")
	}

	brokers := cfg.Infra.Kafka.Brokers
	notificationWriter := mq.NewKafkaWriter(brokers, mq.TopicNotifications)
	snapshotWriter := mq.NewKafkaWriter(brokers, mq.TopicInventorySnapshot)

	tracer := otel.Tracer(serviceName)
	svc := application.NewWarehouseService(repo, infrastructure.NewKafkaAlarmNotifier(notificationWriter), tracer)
	allocator := application.NewAllocator(repo, svc, tracer)

	compensationReader := mq.NewKafkaReader(brokers, mq.TopicCompensate, serviceName+"-compensation")
	consumer := infrastructure.NewCompensationConsumer(compensationReader, svc)

	elector, err := zookeeper.NewElector(cfg.Infra.Zookeeper.Addrs, "inventory-snapshot")
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
	}
	snapshotJob := application.NewSnapshotJob(
		repo,
		infrastructure.NewKafkaSnapshotPublisher(snapshotWriter),
		elector,
		uuid.NewString(),
		cfg.App.SnapshotInterval,
		tracer,
	)

	jobCtx, stopJobs := context.WithCancel(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewWarehouseHandler(svc, allocator).RegisterRoutes(appCtx.Mux)
			consumer.Start(jobCtx)
			go snapshotJob.Run(jobCtx)
		},
		OnShutdown: func(ctx context.Context) {
			stopJobs()
			consumer.Stop()
			elector.Close()
			if err := notificationWriter.Close(); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to close notification writer")
			}
			if err := snapshotWriter.Close(); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to close snapshot writer")
			}
		},
	})
}

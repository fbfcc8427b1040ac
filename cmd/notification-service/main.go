package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"mercato/internal/pkg/bootstrap"
	"mercato/internal/pkg/mq"
	"mercato/internal/service/notification"
)

const (
	serviceName = "notification-service"
	servicePort = 8084
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, mq.TopicNotifications, serviceName+"-group")
	consumer := notification.NewConsumer(reader, notification.LogMailer{}, otel.Tracer(serviceName))
	consumerCtx, stopConsumer := context.WithCancel(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			consumer.Start(consumerCtx)
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			consumer.Stop()
		},
	})
}

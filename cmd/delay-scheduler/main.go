package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"mercato/internal/pkg/bootstrap"
	"mercato/internal/scheduler"
)

const (
	serviceName = "delay-scheduler"
	servicePort = 8085

	pollInterval = time.Second
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)
	pollCtx, stopPollers := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())

			// 每个延迟级别一个独立的轮询器
			for level, delay := range scheduler.Levels {
				poller := scheduler.NewPoller(cfg.Infra.Kafka.Brokers, level, delay, tracer)
				wg.Add(1)
				go func() {
					defer wg.Done()
					poller.Run(pollCtx, pollInterval)
				}()
			}
		},
		OnShutdown: func(ctx context.Context) {
			stopPollers()
			wg.Wait()
		},
	})
}

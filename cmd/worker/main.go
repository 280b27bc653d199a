package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/sales-coach/internal/bootstrap"
	"github.com/kirillkom/sales-coach/internal/config"
	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/usecase"
	"github.com/kirillkom/sales-coach/internal/observability/logging"
	"github.com/kirillkom/sales-coach/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	processTimeout := time.Duration(cfg.ProcessTimeoutSeconds) * time.Second

	app.ProcessUC.OnTransition(func(status domain.CallStatus) {
		workerMetrics.RecordTransition(serviceName, string(status))
	})

	slog.Info("worker_subscribed", "subject", cfg.NATSUploadSubject)
	err = app.Queue.SubscribeCallUploaded(ctx, func(handlerCtx context.Context, callID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		if call, err := app.Repo.GetByID(processCtx, "", callID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(call.CreatedAt))
		}

		workerMetrics.StartCall()
		start := time.Now()
		processErr := app.ProcessUC.ProcessByID(processCtx, callID)
		workerMetrics.FinishCall(serviceName, time.Since(start), processErr)

		if breaker := app.Breakers.Get(usecase.BreakerTranscription); breaker != nil {
			workerMetrics.SetBreakerState(serviceName, breaker.Name(), breakerStateValue(breaker.Stats().State))
		}
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

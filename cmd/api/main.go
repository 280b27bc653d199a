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

	httpadapter "github.com/kirillkom/sales-coach/internal/adapters/http"
	"github.com/kirillkom/sales-coach/internal/bootstrap"
	"github.com/kirillkom/sales-coach/internal/config"
	"github.com/kirillkom/sales-coach/internal/observability/logging"
	"github.com/kirillkom/sales-coach/internal/observability/metrics"
)

const serviceName = "api"

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

	// Worker transitions arrive over NATS and are re-broadcast to the
	// SSE subscribers of this process.
	if err := app.Queue.SubscribeStatusUpdates(ctx, app.Hub.Broadcast); err != nil {
		log.Fatalf("subscribe status updates: %v", err)
	}

	router := httpadapter.NewRouter(app.UploadUC, app.Repo, app.Hub, app.Breakers, httpadapter.RouterConfig{
		RateLimitRPS:    cfg.APIRateLimitRPS,
		RateLimitBurst:  cfg.APIRateLimitBurst,
		MaxInFlight:     cfg.APIMaxInFlight,
		BackpressureMax: time.Duration(cfg.APIBackpressureWait) * time.Millisecond,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)
	router.WithMetrics(serverMetrics, serviceName)

	mux := http.NewServeMux()
	mux.Handle("/metrics", serverMetrics.Handler())
	mux.Handle("/", serverMetrics.Middleware(serviceName, router.Handler()))

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// SSE streams stay open until the call reaches a terminal
		// status, so no write timeout here.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}

package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/sales-coach/internal/config"
	"github.com/kirillkom/sales-coach/internal/core/ports"
	"github.com/kirillkom/sales-coach/internal/core/scoring"
	"github.com/kirillkom/sales-coach/internal/core/usecase"
	"github.com/kirillkom/sales-coach/internal/infrastructure/queue/nats"
	"github.com/kirillkom/sales-coach/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/sales-coach/internal/infrastructure/resilience"
	"github.com/kirillkom/sales-coach/internal/infrastructure/status"
	"github.com/kirillkom/sales-coach/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/sales-coach/internal/infrastructure/transcription/whisperd"
)

// BreakerQueue guards upload publishes to the message queue.
const BreakerQueue = "queue"

type App struct {
	Config config.Config

	Queue    *nats.Queue
	Repo     ports.CallRepository
	Breakers *resilience.Registry
	Hub      *status.Hub

	UploadUC ports.CallUploader
	// Concrete so callers can attach a transition observer.
	ProcessUC *usecase.ProcessCallUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewCallRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	breakers := resilience.NewRegistry(resilience.Settings{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		ResetTimeout:     time.Duration(cfg.BreakerResetTimeoutSeconds) * time.Second,
		SuccessThreshold: uint32(cfg.BreakerSuccessThreshold),
	}, usecase.BreakerTranscription, BreakerQueue)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSUploadSubject, cfg.NATSStatusSubject, nats.Options{
		Breaker: breakers.Get(BreakerQueue),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	transcriber := whisperd.New(
		cfg.WhisperdURL,
		cfg.WhisperdModel,
		storage,
		time.Duration(cfg.WhisperdTimeoutSeconds)*time.Second,
	)

	rubric, err := scoring.LoadConfig(cfg.RubricPath)
	if err != nil {
		return nil, fmt.Errorf("load rubric: %w", err)
	}
	engine := scoring.NewEngine(rubric)

	uploadUC := usecase.NewUploadCallUseCase(
		repo,
		storage,
		queue,
		strings.Split(cfg.AllowedMediaTypes, ","),
		cfg.MaxUploadBytes,
	)
	processUC := usecase.NewProcessCallUseCase(repo, transcriber, engine, breakers, queue)

	return &App{
		Config:   cfg,
		Queue:    queue,
		Repo:     repo,
		Breakers: breakers,
		Hub:      status.NewHub(),

		UploadUC:  uploadUC,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

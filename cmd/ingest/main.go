package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"content-pulse/internal/adapters/repo"
	"content-pulse/internal/domain"
	"content-pulse/internal/infra/config"
	"content-pulse/internal/infra/db"
	applog "content-pulse/internal/infra/log"
	"content-pulse/internal/infra/metrics"
	"content-pulse/internal/infra/queue"
	"content-pulse/internal/usecase/tracking"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var viewQueue domain.ViewQueue
	switch {
	case cfg.RabbitURL != "":
		rabbitQueue, err := queue.NewRabbitViewQueue(cfg.RabbitURL, cfg.Queues.Views)
		if err != nil {
			logger.Fatal().Err(err).Msg("ingest: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		viewQueue = rabbitQueue
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		viewQueue = queue.NewRedisViewQueue(redisClient, cfg.Queues.Views)
	default:
		logger.Fatal().Msg("ingest: не указан адрес очереди (RABBITMQ_URL или REDIS_ADDR)")
	}

	worker := &jobWorker{
		log:     logger,
		queue:   viewQueue,
		service: tracking.NewService(repoAdapter, repoAdapter, repoAdapter, logger.With().Str("component", "tracking").Logger()),
	}

	logger.Info().Msg("ingest: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("ingest: остановлен")
}

type jobWorker struct {
	log     zerolog.Logger
	queue   domain.ViewQueue
	service *tracking.Service
}

const jobTimeout = 10 * time.Second

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("ingest: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Int64("post", job.PostID).
			Logger()

		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		err = w.service.RecordFromJob(jobCtx, job)
		cancel()

		if err != nil {
			// Валидационные ошибки не лечатся повтором: такую задачу
			// подтверждаем, чтобы не зациклить доставку.
			if errors.Is(err, tracking.ErrInvalidPost) || errors.Is(err, tracking.ErrInvalidDuration) {
				jobLog.Error().Err(err).Msg("ingest: некорректная задача, пропускаем")
				if ackErr := ack(true); ackErr != nil {
					jobLog.Error().Err(ackErr).Msg("ingest: не удалось подтвердить некорректную задачу")
				}
				continue
			}
			jobLog.Warn().Err(err).Msg("ingest: не удалось обработать задачу, вернём в очередь")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("ingest: не удалось вернуть задачу в очередь")
			}
			time.Sleep(time.Second)
			continue
		}

		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("ingest: не удалось подтвердить задачу")
		}
	}
}

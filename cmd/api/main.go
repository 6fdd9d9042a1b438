package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"content-pulse/internal/adapters/httpapi"
	"content-pulse/internal/adapters/repo"
	"content-pulse/internal/domain"
	"content-pulse/internal/infra/cache"
	"content-pulse/internal/infra/config"
	"content-pulse/internal/infra/db"
	httpinfra "content-pulse/internal/infra/http"
	applog "content-pulse/internal/infra/log"
	"content-pulse/internal/infra/metrics"
	"content-pulse/internal/infra/queue"
	"content-pulse/internal/usecase/analytics"
	"content-pulse/internal/usecase/suggestions"
	"content-pulse/internal/usecase/tracking"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	if cfg.AuthSecret == "" {
		logger.Fatal().Msg("api: не задан секрет подписи токенов (AUTH_SECRET)")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var popularCache domain.Cache
	if redisClient != nil {
		popularCache = cache.NewRedis(redisClient)
	}

	var viewQueue domain.ViewQueue
	if cfg.IngestMode == "queue" {
		switch {
		case cfg.RabbitURL != "":
			rabbitQueue, err := queue.NewRabbitViewQueue(cfg.RabbitURL, cfg.Queues.Views)
			if err != nil {
				logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь RabbitMQ")
			}
			defer rabbitQueue.Close()
			viewQueue = rabbitQueue
		case redisClient != nil:
			viewQueue = queue.NewRedisViewQueue(redisClient, cfg.Queues.Views)
		default:
			logger.Fatal().Msg("api: режим queue требует RABBITMQ_URL или REDIS_ADDR")
		}
	}

	trackingSvc := tracking.NewService(repoAdapter, repoAdapter, repoAdapter, logger.With().Str("component", "tracking").Logger())
	analyticsSvc := analytics.NewService(repoAdapter, repoAdapter, repoAdapter, popularCache,
		time.Duration(cfg.Limits.PopularCacheTTL)*time.Second, cfg.Limits.ActiveWindowDays)
	suggestionsSvc := suggestions.NewService(repoAdapter, repoAdapter)

	handler := httpapi.NewHandler(trackingSvc, analyticsSvc, suggestionsSvc, viewQueue,
		cfg.Limits.SuggestionSample, logger.With().Str("component", "api").Logger())

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger(),
		httpinfra.TokenAuthMiddleware(cfg.AuthSecret))
	handler.Routes(server.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: HTTP сервер завершился с ошибкой")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка при остановке HTTP сервера")
	}
	logger.Info().Msg("api: остановлен")
}

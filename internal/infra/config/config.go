package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	// AuthSecret подписывает токены идентичности. Значения по умолчанию нет
	// намеренно: секрет передаётся только через окружение.
	AuthSecret string `envconfig:"AUTH_SECRET"`

	// IngestMode выбирает путь регистрации просмотров: inline пишет сразу,
	// queue публикует задачу в очередь для cmd/ingest.
	IngestMode string `envconfig:"INGEST_MODE" default:"inline"`

	Limits struct {
		ActiveWindowDays int `envconfig:"ACTIVE_WINDOW_DAYS" default:"7"`
		SuggestionSample int `envconfig:"SUGGESTION_SAMPLE" default:"10"`
		PopularCacheTTL  int `envconfig:"POPULAR_CACHE_TTL_SECONDS" default:"30"`
	} `envconfig:""`

	Queues struct {
		Views string `envconfig:"VIEW_QUEUE_KEY" default:"view_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

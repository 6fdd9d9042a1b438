package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ViewsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "views_recorded_total",
		Help: "Количество зарегистрированных просмотров",
	})
	ViewRecordStepErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "view_record_step_errors_total",
		Help: "Ошибки по шагам регистрации просмотра",
	}, []string{"step"})
	SuggestionRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suggestion_requests_total",
		Help: "Количество запросов рекомендаций",
	})
	SuggestionsReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suggestions_returned",
		Help:    "Размер выборки рекомендаций",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	AnalyticsQuerySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analytics_query_seconds",
		Help:    "Время выполнения аналитических запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ViewsRecordedTotal,
		ViewRecordStepErrors,
		SuggestionRequestsTotal,
		SuggestionsReturned,
		AnalyticsQuerySeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveAnalyticsQuery записывает длительность аналитического запроса.
func ObserveAnalyticsQuery(query string, start time.Time) {
	AnalyticsQuerySeconds.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// IncViewRecordStepError увеличивает счётчик ошибок шага регистрации просмотра.
func IncViewRecordStepError(step string) {
	ViewRecordStepErrors.WithLabelValues(step).Inc()
}

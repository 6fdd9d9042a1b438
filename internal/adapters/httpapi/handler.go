package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"content-pulse/internal/domain"
	httpinfra "content-pulse/internal/infra/http"
	"content-pulse/internal/usecase/analytics"
	"content-pulse/internal/usecase/suggestions"
	"content-pulse/internal/usecase/tracking"
)

// Handler — read-фасад аналитики и точка приёма просмотров. Авторизация
// сводится к проверке роли из токена: выдача токенов — внешний сервис.
type Handler struct {
	tracking    *tracking.Service
	analytics   *analytics.Service
	suggestions *suggestions.Service

	// queue не nil в режиме отложенной регистрации: POST /views публикует
	// задачу вместо синхронной записи.
	queue domain.ViewQueue

	defaultSample int
	defaultLimit  int
	log           zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(trackingSvc *tracking.Service, analyticsSvc *analytics.Service, suggestionsSvc *suggestions.Service, queue domain.ViewQueue, defaultSample int, logger zerolog.Logger) *Handler {
	if defaultSample <= 0 {
		defaultSample = 10
	}
	return &Handler{
		tracking:      trackingSvc,
		analytics:     analyticsSvc,
		suggestions:   suggestionsSvc,
		queue:         queue,
		defaultSample: defaultSample,
		defaultLimit:  10,
		log:           logger,
	}
}

// Routes регистрирует маршруты.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/views", h.recordView)

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.RequireAnalyticsRole)
		protected.Get("/analytics/views", h.viewsOverTime)
		protected.Get("/analytics/registrations", h.registrations)
		protected.Get("/analytics/popular", h.popularPosts)
		protected.Get("/analytics/active-users", h.activeUsers)
		protected.Get("/analytics/roles", h.roleDistribution)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.RequireIdentity)
		protected.Get("/suggestions", h.suggest)
	})
}

type recordViewRequest struct {
	PostID          int64 `json:"post_id"`
	DurationSeconds *int  `json:"duration_seconds,omitempty"`
}

func (h *Handler) recordView(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req recordViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}
	if req.PostID <= 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, tracking.ErrInvalidPost.Error())
		return
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, tracking.ErrInvalidDuration.Error())
		return
	}

	var viewerID *int64
	if identity, ok := httpinfra.IdentityFromContext(r.Context()); ok {
		id := identity.UserID
		viewerID = &id
	}

	if h.queue != nil {
		job := domain.ViewJob{
			ID:              uuid.NewString(),
			PostID:          req.PostID,
			UserID:          viewerID,
			DurationSeconds: req.DurationSeconds,
			ViewedAt:        time.Now().UTC(),
			RequestedAt:     time.Now().UTC(),
		}
		if err := h.queue.Enqueue(r.Context(), job); err != nil {
			h.log.Error().Err(err).Int64("post", req.PostID).Msg("api: не удалось поставить просмотр в очередь")
			httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось зарегистрировать просмотр")
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	err := h.tracking.RecordView(r.Context(), tracking.RecordViewInput{
		PostID:          req.PostID,
		UserID:          viewerID,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		h.log.Error().Err(err).Int64("post", req.PostID).Msg("api: не удалось зарегистрировать просмотр")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось зарегистрировать просмотр")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) viewsOverTime(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.analytics.ViewsOverTime(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.log.Error().Err(err).Msg("api: агрегация просмотров")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось собрать статистику")
		return
	}
	httpinfra.WriteJSON(w, bucketsOrEmpty(buckets))
}

func (h *Handler) registrations(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.analytics.Registrations(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.log.Error().Err(err).Msg("api: агрегация регистраций")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось собрать статистику")
		return
	}
	httpinfra.WriteJSON(w, bucketsOrEmpty(buckets))
}

func (h *Handler) popularPosts(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			limit = parsed
		}
		// Нечисловой limit не отклоняется: работает значение по умолчанию.
	}
	posts, err := h.analytics.PopularPosts(r.Context(), limit)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidLimit) {
			httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("api: популярные публикации")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось собрать статистику")
		return
	}
	if posts == nil {
		posts = []domain.PostCandidate{}
	}
	httpinfra.WriteJSON(w, posts)
}

func (h *Handler) activeUsers(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			days = parsed
		}
	}
	count, err := h.analytics.ActiveUsers(r.Context(), days)
	if err != nil {
		h.log.Error().Err(err).Msg("api: активные пользователи")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось собрать статистику")
		return
	}
	httpinfra.WriteJSON(w, map[string]int64{"activeUsers": count})
}

func (h *Handler) roleDistribution(w http.ResponseWriter, r *http.Request) {
	distribution, err := h.analytics.RoleDistribution(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("api: распределение ролей")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось собрать статистику")
		return
	}
	httpinfra.WriteJSON(w, distribution)
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	identity, _ := httpinfra.IdentityFromContext(r.Context())

	sampleSize := h.defaultSample
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			sampleSize = parsed
		}
	}
	result, err := h.suggestions.Suggest(r.Context(), identity.UserID, sampleSize)
	if err != nil {
		switch {
		case errors.Is(err, suggestions.ErrInvalidSampleSize):
			httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrUserNotFound):
			httpinfra.WriteError(w, http.StatusNotFound, err.Error())
		default:
			h.log.Error().Err(err).Int64("user", identity.UserID).Msg("api: рекомендации")
			httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось подобрать рекомендации")
		}
		return
	}
	if result == nil {
		result = []domain.PostCandidate{}
	}
	httpinfra.WriteJSON(w, result)
}

func bucketsOrEmpty(buckets []domain.AggregationBucket) []domain.AggregationBucket {
	if buckets == nil {
		return []domain.AggregationBucket{}
	}
	return buckets
}

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"content-pulse/internal/domain"
	"content-pulse/internal/infra/metrics"
)

var (
	ErrInvalidLimit = errors.New("limit должен быть положительным")
)

const popularCacheKey = "analytics:popular"

// Service считает агрегаты по событиям просмотров и населению пользователей.
// Все операции — чистые чтения: результат собирается заново на каждый запрос.
type Service struct {
	views domain.ViewRepo
	users domain.UserRepo
	posts domain.PostRepo

	// cache опционален и применяется только к выдаче популярных публикаций.
	cache      domain.Cache
	popularTTL time.Duration

	defaultWindowDays int
}

// NewService создаёт сервис аналитики. cache может быть nil.
func NewService(views domain.ViewRepo, users domain.UserRepo, posts domain.PostRepo, cache domain.Cache, popularTTL time.Duration, defaultWindowDays int) *Service {
	if defaultWindowDays <= 0 {
		defaultWindowDays = 7
	}
	return &Service{
		views:             views,
		users:             users,
		posts:             posts,
		cache:             cache,
		popularTTL:        popularTTL,
		defaultWindowDays: defaultWindowDays,
	}
}

// ViewsOverTime группирует просмотры по интервалам. Неизвестный период
// трактуется как daily, а не как ошибка.
func (s *Service) ViewsOverTime(ctx context.Context, period string) ([]domain.AggregationBucket, error) {
	start := time.Now()
	defer metrics.ObserveAnalyticsQuery("views_over_time", start)
	return s.views.AggregateViews(ctx, domain.ParsePeriod(period))
}

// Registrations группирует регистрации пользователей по интервалам.
func (s *Service) Registrations(ctx context.Context, period string) ([]domain.AggregationBucket, error) {
	start := time.Now()
	defer metrics.ObserveAnalyticsQuery("registrations", start)
	return s.users.AggregateRegistrations(ctx, domain.ParsePeriod(period))
}

// PopularPosts возвращает limit публикаций по убыванию счётчика просмотров
// с профилем автора. Неположительный limit — ошибка.
func (s *Service) PopularPosts(ctx context.Context, limit int) ([]domain.PostCandidate, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()
	defer metrics.ObserveAnalyticsQuery("popular_posts", start)

	if cached, ok := s.popularFromCache(ctx, limit); ok {
		return cached, nil
	}
	posts, err := s.posts.ListTopByViews(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.storePopular(ctx, limit, posts)
	return posts, nil
}

type popularCacheEntry struct {
	Limit int                    `json:"limit"`
	Posts []domain.PostCandidate `json:"posts"`
}

// Кэш — ускорение горячего эндпоинта, не источник истины: любые ошибки
// кэша игнорируются, запрос уходит в хранилище.
func (s *Service) popularFromCache(ctx context.Context, limit int) ([]domain.PostCandidate, bool) {
	if s.cache == nil || s.popularTTL <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, popularCacheKey)
	if err != nil {
		return nil, false
	}
	var entry popularCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Limit < limit {
		return nil, false
	}
	if limit < len(entry.Posts) {
		return entry.Posts[:limit], true
	}
	return entry.Posts, true
}

func (s *Service) storePopular(ctx context.Context, limit int, posts []domain.PostCandidate) {
	if s.cache == nil || s.popularTTL <= 0 {
		return
	}
	raw, err := json.Marshal(popularCacheEntry{Limit: limit, Posts: posts})
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, popularCacheKey, raw, s.popularTTL)
}

// ActiveUsers считает пользователей с lastLoginAt не старше windowDays.
// Неположительное окно заменяется значением по умолчанию.
func (s *Service) ActiveUsers(ctx context.Context, windowDays int) (int64, error) {
	if windowDays <= 0 {
		windowDays = s.defaultWindowDays
	}
	start := time.Now()
	defer metrics.ObserveAnalyticsQuery("active_users", start)

	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)
	return s.users.CountActiveSince(ctx, cutoff)
}

// RoleDistribution возвращает число пользователей по ролям. Роли без
// пользователей в ответе отсутствуют.
func (s *Service) RoleDistribution(ctx context.Context) (map[domain.UserRole]int64, error) {
	start := time.Now()
	defer metrics.ObserveAnalyticsQuery("role_distribution", start)
	return s.users.RoleDistribution(ctx)
}

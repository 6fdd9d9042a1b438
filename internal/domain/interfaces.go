package domain

import (
	"context"
	"time"
)

// PostRepo управляет публикациями со стороны аналитики.
type PostRepo interface {
	// IncrementViewCount атомарно увеличивает счётчик просмотров на единицу.
	// Реализация обязана выполнять сложение на месте, без чтения-записи:
	// конкурентные вызовы для одной публикации не должны терять инкременты.
	IncrementViewCount(ctx context.Context, postID int64) error
	// ListByTags возвращает публикации, теги которых пересекаются с tags,
	// исключая публикации из excludeIDs.
	ListByTags(ctx context.Context, tags []string, excludeIDs []int64) ([]PostCandidate, error)
	// ListTopByViews возвращает limit публикаций по убыванию счётчика
	// просмотров вместе с профилем автора. Порядок при равных счётчиках
	// стабилен между вызовами.
	ListTopByViews(ctx context.Context, limit int) ([]PostCandidate, error)
	// TagsOfPosts возвращает объединение тегов указанных публикаций.
	TagsOfPosts(ctx context.Context, ids []int64) ([]string, error)
}

// UserRepo управляет пользователями со стороны аналитики.
type UserRepo interface {
	GetUser(ctx context.Context, id int64) (User, error)
	ListViewedPosts(ctx context.Context, userID int64) ([]ViewedPost, error)
	// AppendViewedPost добавляет запись в историю просмотров. История
	// только растёт, повторные просмотры не схлопываются.
	AppendViewedPost(ctx context.Context, userID int64, entry ViewedPost) error
	CountActiveSince(ctx context.Context, cutoff time.Time) (int64, error)
	RoleDistribution(ctx context.Context) (map[UserRole]int64, error)
	// AggregateRegistrations группирует регистрации по интервалам периода,
	// ключи отсортированы по возрастанию.
	AggregateRegistrations(ctx context.Context, period Period) ([]AggregationBucket, error)
}

// ViewRepo — журнал событий просмотров, только добавление.
type ViewRepo interface {
	AppendView(ctx context.Context, event ViewEvent) error
	// AggregateViews группирует события по интервалам периода. Для каждого
	// интервала считается число событий и сумма длительностей (отсутствующая
	// длительность вносит 0). Ключи отсортированы по возрастанию.
	AggregateViews(ctx context.Context, period Period) ([]AggregationBucket, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

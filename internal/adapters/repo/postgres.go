package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"content-pulse/internal/domain"
	"content-pulse/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PostRepo = (*Postgres)(nil)
	_ domain.UserRepo = (*Postgres)(nil)
	_ domain.ViewRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// IncrementViewCount увеличивает счётчик просмотров на единицу. Сложение
// выполняется на стороне БД, поэтому конкурентные вызовы для одной
// публикации не теряют инкременты.
func (p *Postgres) IncrementViewCount(ctx context.Context, postID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE posts SET view_count = view_count + 1 WHERE id=$1`, postID)
	metrics.ObserveNetworkRequest("postgres", "posts_increment_views", "posts", start, err)
	return err
}

// ListByTags возвращает публикации с пересечением тегов, исключая указанные.
func (p *Postgres) ListByTags(ctx context.Context, tags []string, excludeIDs []int64) ([]domain.PostCandidate, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, tags, view_count
FROM posts
WHERE tags && $1 AND NOT (id = ANY($2))
`, tags, excludeIDs)
	metrics.ObserveNetworkRequest("postgres", "posts_list_by_tags", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []domain.PostCandidate
	for rows.Next() {
		var c domain.PostCandidate
		if err := rows.Scan(&c.PostID, &c.Title, &c.Tags, &c.ViewCount); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ListTopByViews возвращает публикации по убыванию счётчика просмотров с
// профилем автора. Вторичная сортировка по id даёт стабильный порядок при
// равных счётчиках.
func (p *Postgres) ListTopByViews(ctx context.Context, limit int) ([]domain.PostCandidate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT p.id, p.title, p.tags, p.view_count, u.username, u.avatar_url
FROM posts p JOIN users u ON u.id = p.author_id
ORDER BY p.view_count DESC, p.id
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list_top", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []domain.PostCandidate
	for rows.Next() {
		var (
			c      domain.PostCandidate
			author domain.AuthorProfile
			avatar sql.NullString
		)
		if err := rows.Scan(&c.PostID, &c.Title, &c.Tags, &c.ViewCount, &author.Username, &avatar); err != nil {
			return nil, err
		}
		if avatar.Valid {
			author.AvatarURL = avatar.String
		}
		c.Author = &author
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// TagsOfPosts возвращает объединение тегов указанных публикаций.
func (p *Postgres) TagsOfPosts(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT tag
FROM posts, unnest(tags) AS tag
WHERE id = ANY($1)
ORDER BY tag
`, ids)
	metrics.ObserveNetworkRequest("postgres", "posts_tags_union", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// GetUser возвращает пользователя по идентификатору.
func (p *Postgres) GetUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		user      domain.User
		avatar    sql.NullString
		lastLogin sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, username, avatar_url, role, interests, last_login_at, created_at
FROM users WHERE id=$1
`, id).Scan(&user.ID, &user.Username, &avatar, &user.Role, &user.Interests, &lastLogin, &user.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if avatar.Valid {
		user.AvatarURL = avatar.String
	}
	if lastLogin.Valid {
		ts := lastLogin.Time
		user.LastLoginAt = &ts
	}
	return user, nil
}

// ListViewedPosts возвращает историю просмотров в хронологическом порядке.
func (p *Postgres) ListViewedPosts(ctx context.Context, userID int64) ([]domain.ViewedPost, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, viewed_at
FROM user_viewed_posts
WHERE user_id=$1
ORDER BY viewed_at, id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "user_viewed_posts_list", "user_viewed_posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []domain.ViewedPost
	for rows.Next() {
		var entry domain.ViewedPost
		if err := rows.Scan(&entry.PostID, &entry.ViewedAt); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// AppendViewedPost дописывает запись истории. Дубликаты допустимы: повторный
// просмотр — отдельный сигнал вовлечённости.
func (p *Postgres) AppendViewedPost(ctx context.Context, userID int64, entry domain.ViewedPost) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_viewed_posts (user_id, post_id, viewed_at)
VALUES ($1, $2, $3)
`, userID, entry.PostID, entry.ViewedAt)
	metrics.ObserveNetworkRequest("postgres", "user_viewed_posts_append", "user_viewed_posts", start, err)
	return err
}

// CountActiveSince считает пользователей, заходивших не раньше cutoff.
func (p *Postgres) CountActiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var count int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE last_login_at >= $1`, cutoff).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "users_count_active", "users", start, err)
	return count, err
}

// RoleDistribution возвращает число пользователей по ролям. Роли без
// пользователей в выборку не попадают.
func (p *Postgres) RoleDistribution(ctx context.Context) (map[domain.UserRole]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	metrics.ObserveNetworkRequest("postgres", "users_role_distribution", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	distribution := make(map[domain.UserRole]int64)
	for rows.Next() {
		var (
			role  string
			count int64
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		distribution[domain.UserRole(role)] = count
	}
	return distribution, rows.Err()
}

// AggregateRegistrations группирует регистрации по ключу периода.
func (p *Postgres) AggregateRegistrations(ctx context.Context, period domain.Period) ([]domain.AggregationBucket, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT to_char(created_at AT TIME ZONE 'UTC', $1) AS bucket, COUNT(*)
FROM users
GROUP BY bucket
ORDER BY bucket
`, period.PGFormat())
	metrics.ObserveNetworkRequest("postgres", "users_aggregate_registrations", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var buckets []domain.AggregationBucket
	for rows.Next() {
		var bucket domain.AggregationBucket
		if err := rows.Scan(&bucket.BucketKey, &bucket.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}

// AppendView добавляет событие просмотра в журнал.
func (p *Postgres) AppendView(ctx context.Context, event domain.ViewEvent) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}
	var duration sql.NullInt64
	if event.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: int64(*event.DurationSeconds), Valid: true}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO views (id, post_id, user_id, viewed_at, duration_seconds)
VALUES ($1, $2, $3, $4, $5)
`, event.ID, event.PostID, userID, event.ViewedAt, duration)
	metrics.ObserveNetworkRequest("postgres", "views_append", "views", start, err)
	return err
}

// AggregateViews группирует события по ключу периода. Отсутствующая
// длительность вносит в сумму 0.
func (p *Postgres) AggregateViews(ctx context.Context, period domain.Period) ([]domain.AggregationBucket, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT to_char(viewed_at AT TIME ZONE 'UTC', $1) AS bucket,
       COUNT(*),
       COALESCE(SUM(duration_seconds), 0)
FROM views
GROUP BY bucket
ORDER BY bucket
`, period.PGFormat())
	metrics.ObserveNetworkRequest("postgres", "views_aggregate", "views", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var buckets []domain.AggregationBucket
	for rows.Next() {
		var bucket domain.AggregationBucket
		if err := rows.Scan(&bucket.BucketKey, &bucket.Count, &bucket.TotalDuration); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}

package domain

import "time"

// User описывает пользователя платформы (срез полей, нужный аналитике).
type User struct {
	ID          int64
	Username    string
	AvatarURL   string
	Role        UserRole
	Interests   []string
	LastLoginAt *time.Time
	CreatedAt   time.Time
}

// Post представляет публикацию.
type Post struct {
	ID        int64
	AuthorID  int64
	Title     string
	Tags      []string
	ViewCount int64
	CreatedAt time.Time
}

// ViewEvent — одно наблюдение просмотра публикации. Запись неизменяема:
// подсистема только добавляет события и никогда их не обновляет.
type ViewEvent struct {
	ID              string
	PostID          int64
	UserID          *int64
	ViewedAt        time.Time
	DurationSeconds *int
}

// ViewedPost — запись истории просмотров пользователя. Повторный просмотр
// той же публикации добавляет новую запись, дедупликации нет.
type ViewedPost struct {
	PostID   int64
	ViewedAt time.Time
}

// AggregationBucket — агрегат за один временной интервал. Значение считается
// заново на каждый запрос и нигде не сохраняется.
type AggregationBucket struct {
	BucketKey     string `json:"bucket"`
	Count         int64  `json:"count"`
	TotalDuration int64  `json:"total_duration,omitempty"`
}

// AuthorProfile — публичные поля автора для выдачи популярных публикаций.
type AuthorProfile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// PostCandidate — проекция публикации для рекомендаций и рейтингов.
// Author заполняется только при выдаче популярных публикаций.
type PostCandidate struct {
	PostID    int64          `json:"post_id"`
	Title     string         `json:"title"`
	Tags      []string       `json:"tags"`
	ViewCount int64          `json:"view_count"`
	Author    *AuthorProfile `json:"author,omitempty"`
}

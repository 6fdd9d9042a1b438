package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"content-pulse/internal/domain"
	"content-pulse/internal/infra/metrics"
)

var (
	ErrInvalidPost     = errors.New("идентификатор публикации обязателен")
	ErrInvalidDuration = errors.New("длительность просмотра не может быть отрицательной")
)

// Service регистрирует просмотры и поддерживает производное состояние:
// журнал событий, историю пользователя и счётчик просмотров публикации.
type Service struct {
	views domain.ViewRepo
	users domain.UserRepo
	posts domain.PostRepo
	log   zerolog.Logger
}

// NewService создаёт сервис трекинга.
func NewService(views domain.ViewRepo, users domain.UserRepo, posts domain.PostRepo, logger zerolog.Logger) *Service {
	return &Service{views: views, users: users, posts: posts, log: logger}
}

// RecordViewInput описывает один просмотр.
type RecordViewInput struct {
	PostID          int64
	UserID          *int64
	DurationSeconds *int
	// ViewedAt по умолчанию — момент регистрации.
	ViewedAt time.Time
}

// RecordView выполняет три шага: добавляет событие в журнал, дописывает
// историю пользователя и атомарно увеличивает счётчик публикации.
// Шаги не обёрнуты в транзакцию: при ошибке уже выполненные шаги
// не откатываются, вызывающий получает ошибку первого неудавшегося шага.
// Существование публикации не проверяется — это забота вызывающего слоя.
func (s *Service) RecordView(ctx context.Context, in RecordViewInput) error {
	if in.PostID <= 0 {
		return ErrInvalidPost
	}
	if in.DurationSeconds != nil && *in.DurationSeconds < 0 {
		return ErrInvalidDuration
	}
	viewedAt := in.ViewedAt
	if viewedAt.IsZero() {
		viewedAt = time.Now().UTC()
	}

	event := domain.ViewEvent{
		ID:              uuid.NewString(),
		PostID:          in.PostID,
		UserID:          in.UserID,
		ViewedAt:        viewedAt,
		DurationSeconds: in.DurationSeconds,
	}
	if err := s.views.AppendView(ctx, event); err != nil {
		metrics.IncViewRecordStepError("event_append")
		return fmt.Errorf("запись события просмотра: %w", err)
	}

	if in.UserID != nil {
		entry := domain.ViewedPost{PostID: in.PostID, ViewedAt: viewedAt}
		if err := s.users.AppendViewedPost(ctx, *in.UserID, entry); err != nil {
			metrics.IncViewRecordStepError("history_append")
			s.log.Warn().Err(err).Int64("user", *in.UserID).Int64("post", in.PostID).
				Msg("tracking: событие записано, история не дописана")
			return fmt.Errorf("запись истории просмотров: %w", err)
		}
	}

	if err := s.posts.IncrementViewCount(ctx, in.PostID); err != nil {
		metrics.IncViewRecordStepError("counter_increment")
		s.log.Warn().Err(err).Int64("post", in.PostID).
			Msg("tracking: событие записано, счётчик не увеличен")
		return fmt.Errorf("инкремент счётчика просмотров: %w", err)
	}

	metrics.ViewsRecordedTotal.Inc()
	return nil
}

// RecordFromJob регистрирует просмотр из задачи очереди.
func (s *Service) RecordFromJob(ctx context.Context, job domain.ViewJob) error {
	return s.RecordView(ctx, RecordViewInput{
		PostID:          job.PostID,
		UserID:          job.UserID,
		DurationSeconds: job.DurationSeconds,
		ViewedAt:        job.ViewedAt,
	})
}

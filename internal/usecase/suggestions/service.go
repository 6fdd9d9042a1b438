package suggestions

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"content-pulse/internal/domain"
	"content-pulse/internal/infra/metrics"
)

var (
	ErrInvalidSampleSize = errors.New("размер выборки должен быть положительным")
)

// Service подбирает пользователю непросмотренные публикации по его тегам.
type Service struct {
	users domain.UserRepo
	posts domain.PostRepo
}

// NewService создаёт сервис рекомендаций.
func NewService(users domain.UserRepo, posts domain.PostRepo) *Service {
	return &Service{users: users, posts: posts}
}

// Suggest возвращает случайную выборку непросмотренных публикаций, теги
// которых пересекаются с интересами пользователя. Явные интересы имеют
// абсолютный приоритет; при их отсутствии теги выводятся из истории
// просмотров. Пустой набор тегов даёт пустую выдачу без ошибки.
// Выборка случайна: повторный вызов с теми же данными может вернуть другое
// подмножество кандидатов.
func (s *Service) Suggest(ctx context.Context, userID int64, sampleSize int) ([]domain.PostCandidate, error) {
	if sampleSize <= 0 {
		return nil, ErrInvalidSampleSize
	}
	metrics.SuggestionRequestsTotal.Inc()

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	history, err := s.users.ListViewedPosts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение истории просмотров: %w", err)
	}

	viewedIDs := uniquePostIDs(history)
	affinity, err := s.tagAffinity(ctx, user, viewedIDs)
	if err != nil {
		return nil, err
	}
	if len(affinity) == 0 {
		metrics.SuggestionsReturned.Observe(0)
		return []domain.PostCandidate{}, nil
	}

	candidates, err := s.posts.ListByTags(ctx, affinity, viewedIDs)
	if err != nil {
		return nil, fmt.Errorf("подбор кандидатов: %w", err)
	}

	sampled := sample(candidates, sampleSize)
	metrics.SuggestionsReturned.Observe(float64(len(sampled)))
	return sampled, nil
}

// tagAffinity возвращает набор тегов пользователя: явные интересы либо
// объединение тегов просмотренных публикаций.
func (s *Service) tagAffinity(ctx context.Context, user domain.User, viewedIDs []int64) ([]string, error) {
	if len(user.Interests) > 0 {
		return user.Interests, nil
	}
	if len(viewedIDs) == 0 {
		return nil, nil
	}
	tags, err := s.posts.TagsOfPosts(ctx, viewedIDs)
	if err != nil {
		return nil, fmt.Errorf("теги просмотренных публикаций: %w", err)
	}
	return tags, nil
}

func uniquePostIDs(history []domain.ViewedPost) []int64 {
	seen := make(map[int64]struct{}, len(history))
	ids := make([]int64, 0, len(history))
	for _, entry := range history {
		if _, ok := seen[entry.PostID]; ok {
			continue
		}
		seen[entry.PostID] = struct{}{}
		ids = append(ids, entry.PostID)
	}
	return ids
}

// sample делает случайную выборку без возвращения: перемешивает кандидатов
// и отрезает первые n.
func sample(candidates []domain.PostCandidate, n int) []domain.PostCandidate {
	shuffled := make([]domain.PostCandidate, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

package suggestions

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"content-pulse/internal/domain"
)

type stubUsers struct {
	user    domain.User
	history []domain.ViewedPost
	userErr error
}

func (s *stubUsers) GetUser(context.Context, int64) (domain.User, error) {
	if s.userErr != nil {
		return domain.User{}, s.userErr
	}
	return s.user, nil
}
func (s *stubUsers) ListViewedPosts(context.Context, int64) ([]domain.ViewedPost, error) {
	return s.history, nil
}
func (s *stubUsers) AppendViewedPost(context.Context, int64, domain.ViewedPost) error { return nil }
func (s *stubUsers) CountActiveSince(context.Context, time.Time) (int64, error)       { return 0, nil }
func (s *stubUsers) RoleDistribution(context.Context) (map[domain.UserRole]int64, error) {
	return nil, nil
}
func (s *stubUsers) AggregateRegistrations(context.Context, domain.Period) ([]domain.AggregationBucket, error) {
	return nil, nil
}

// stubPosts хранит публикации и отвечает на запросы по тегам так же, как
// это делает хранилище: пересечение тегов плюс исключение по идентификатору.
type stubPosts struct {
	posts []domain.Post

	lastTags    []string
	lastExclude []int64
}

func (s *stubPosts) IncrementViewCount(context.Context, int64) error { return nil }
func (s *stubPosts) ListByTags(_ context.Context, tags []string, excludeIDs []int64) ([]domain.PostCandidate, error) {
	s.lastTags = tags
	s.lastExclude = excludeIDs
	var result []domain.PostCandidate
	for _, post := range s.posts {
		if slices.Contains(excludeIDs, post.ID) {
			continue
		}
		matched := false
		for _, tag := range post.Tags {
			if slices.Contains(tags, tag) {
				matched = true
				break
			}
		}
		if matched {
			result = append(result, domain.PostCandidate{PostID: post.ID, Title: post.Title, Tags: post.Tags, ViewCount: post.ViewCount})
		}
	}
	return result, nil
}
func (s *stubPosts) ListTopByViews(context.Context, int) ([]domain.PostCandidate, error) {
	return nil, nil
}
func (s *stubPosts) TagsOfPosts(_ context.Context, ids []int64) ([]string, error) {
	seen := make(map[string]struct{})
	var tags []string
	for _, post := range s.posts {
		if !slices.Contains(ids, post.ID) {
			continue
		}
		for _, tag := range post.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func TestSuggestInterestsPrecedence(t *testing.T) {
	// Интересы заданы явно, история указывает на другие теги: выдача
	// должна строиться только по интересам.
	users := &stubUsers{
		user:    domain.User{ID: 1, Interests: []string{"go"}},
		history: []domain.ViewedPost{{PostID: 10}},
	}
	posts := &stubPosts{posts: []domain.Post{
		{ID: 10, Tags: []string{"rust"}},
		{ID: 11, Tags: []string{"rust"}},
		{ID: 12, Tags: []string{"go"}},
		{ID: 13, Tags: []string{"go", "web"}},
	}}
	service := NewService(users, posts)

	result, err := service.Suggest(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("ожидали 2 кандидата, получили %d", len(result))
	}
	for _, candidate := range result {
		if !slices.Contains(candidate.Tags, "go") {
			t.Fatalf("кандидат без тега go: %+v", candidate)
		}
	}
	if !slices.Equal(posts.lastTags, []string{"go"}) {
		t.Fatalf("история не должна смешиваться с интересами: %v", posts.lastTags)
	}
}

func TestSuggestHistoryFallback(t *testing.T) {
	users := &stubUsers{
		user: domain.User{ID: 1},
		history: []domain.ViewedPost{
			{PostID: 1}, // теги x
			{PostID: 2}, // теги y
		},
	}
	posts := &stubPosts{posts: []domain.Post{
		{ID: 1, Tags: []string{"x"}},
		{ID: 2, Tags: []string{"y"}},
		{ID: 3, Tags: []string{"x"}},
		{ID: 4, Tags: []string{"y"}},
		{ID: 5, Tags: []string{"z"}},
	}}
	service := NewService(users, posts)

	result, err := service.Suggest(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	gotIDs := make([]int64, 0, len(result))
	for _, candidate := range result {
		gotIDs = append(gotIDs, candidate.PostID)
	}
	slices.Sort(gotIDs)
	if !slices.Equal(gotIDs, []int64{3, 4}) {
		t.Fatalf("ожидали кандидатов 3 и 4, получили %v", gotIDs)
	}
}

func TestSuggestExcludesViewed(t *testing.T) {
	users := &stubUsers{
		user:    domain.User{ID: 1, Interests: []string{"go"}},
		history: []domain.ViewedPost{{PostID: 12}, {PostID: 12}},
	}
	posts := &stubPosts{posts: []domain.Post{
		{ID: 12, Tags: []string{"go"}},
		{ID: 13, Tags: []string{"go"}},
	}}
	service := NewService(users, posts)

	result, err := service.Suggest(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, candidate := range result {
		if candidate.PostID == 12 {
			t.Fatalf("просмотренная публикация попала в выдачу")
		}
	}
	// Повторные просмотры схлопываются в один идентификатор исключения.
	if !slices.Equal(posts.lastExclude, []int64{12}) {
		t.Fatalf("неожиданный список исключений: %v", posts.lastExclude)
	}
}

func TestSuggestColdState(t *testing.T) {
	users := &stubUsers{user: domain.User{ID: 1}}
	posts := &stubPosts{posts: []domain.Post{{ID: 1, Tags: []string{"go"}}}}
	service := NewService(users, posts)

	result, err := service.Suggest(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("холодный пользователь не должен приводить к ошибке: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("ожидали пустую выдачу, получили %d кандидатов", len(result))
	}
}

func TestSuggestSampleSize(t *testing.T) {
	users := &stubUsers{user: domain.User{ID: 1, Interests: []string{"go"}}}
	var all []domain.Post
	for i := int64(1); i <= 20; i++ {
		all = append(all, domain.Post{ID: i, Tags: []string{"go"}})
	}
	posts := &stubPosts{posts: all}
	service := NewService(users, posts)

	result, err := service.Suggest(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) != 5 {
		t.Fatalf("ожидали выборку из 5, получили %d", len(result))
	}
	// Выборка без возвращения: дубликатов быть не должно.
	seen := make(map[int64]struct{})
	for _, candidate := range result {
		if _, ok := seen[candidate.PostID]; ok {
			t.Fatalf("дубликат в выборке: %d", candidate.PostID)
		}
		seen[candidate.PostID] = struct{}{}
	}
}

func TestSuggestSampleSmallerThanRequest(t *testing.T) {
	users := &stubUsers{user: domain.User{ID: 1, Interests: []string{"go"}}}
	posts := &stubPosts{posts: []domain.Post{{ID: 1, Tags: []string{"go"}}, {ID: 2, Tags: []string{"go"}}}}
	service := NewService(users, posts)

	result, err := service.Suggest(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("ожидали всех кандидатов, получили %d", len(result))
	}
}

// Выборка случайна, но множество кандидатов фиксировано: проверяем
// принадлежность, а не конкретное подмножество.
func TestSuggestSampleMembership(t *testing.T) {
	users := &stubUsers{user: domain.User{ID: 1, Interests: []string{"go"}}}
	var all []domain.Post
	for i := int64(1); i <= 10; i++ {
		all = append(all, domain.Post{ID: i, Tags: []string{"go"}})
	}
	posts := &stubPosts{posts: all}
	service := NewService(users, posts)

	for attempt := 0; attempt < 5; attempt++ {
		result, err := service.Suggest(context.Background(), 1, 3)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		for _, candidate := range result {
			if candidate.PostID < 1 || candidate.PostID > 10 {
				t.Fatalf("кандидат вне множества: %d", candidate.PostID)
			}
		}
	}
}

func TestSuggestValidatesSampleSize(t *testing.T) {
	service := NewService(&stubUsers{}, &stubPosts{})
	if _, err := service.Suggest(context.Background(), 1, 0); !errors.Is(err, ErrInvalidSampleSize) {
		t.Fatalf("ожидали ErrInvalidSampleSize, получили %v", err)
	}
}

func TestSuggestUnknownUser(t *testing.T) {
	service := NewService(&stubUsers{userErr: domain.ErrUserNotFound}, &stubPosts{})
	_, err := service.Suggest(context.Background(), 99, 10)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("ожидали ErrUserNotFound, получили %v", err)
	}
}

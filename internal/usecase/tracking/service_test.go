package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"content-pulse/internal/domain"
)

type stubViewRepo struct {
	mu     sync.Mutex
	events []domain.ViewEvent
	fail   error
}

func (s *stubViewRepo) AppendView(_ context.Context, event domain.ViewEvent) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubViewRepo) AggregateViews(context.Context, domain.Period) ([]domain.AggregationBucket, error) {
	return nil, nil
}

type stubUserRepo struct {
	mu      sync.Mutex
	history map[int64][]domain.ViewedPost
	fail    error
}

func (s *stubUserRepo) GetUser(context.Context, int64) (domain.User, error) {
	return domain.User{}, nil
}
func (s *stubUserRepo) ListViewedPosts(context.Context, int64) ([]domain.ViewedPost, error) {
	return nil, nil
}
func (s *stubUserRepo) AppendViewedPost(_ context.Context, userID int64, entry domain.ViewedPost) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		s.history = make(map[int64][]domain.ViewedPost)
	}
	s.history[userID] = append(s.history[userID], entry)
	return nil
}
func (s *stubUserRepo) CountActiveSince(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *stubUserRepo) RoleDistribution(context.Context) (map[domain.UserRole]int64, error) {
	return nil, nil
}
func (s *stubUserRepo) AggregateRegistrations(context.Context, domain.Period) ([]domain.AggregationBucket, error) {
	return nil, nil
}

type stubPostRepo struct {
	counters sync.Map // postID -> *int64
	fail     error
}

func (s *stubPostRepo) IncrementViewCount(_ context.Context, postID int64) error {
	if s.fail != nil {
		return s.fail
	}
	counter, _ := s.counters.LoadOrStore(postID, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
	return nil
}
func (s *stubPostRepo) ListByTags(context.Context, []string, []int64) ([]domain.PostCandidate, error) {
	return nil, nil
}
func (s *stubPostRepo) ListTopByViews(context.Context, int) ([]domain.PostCandidate, error) {
	return nil, nil
}
func (s *stubPostRepo) TagsOfPosts(context.Context, []int64) ([]string, error) { return nil, nil }

func (s *stubPostRepo) count(postID int64) int64 {
	counter, ok := s.counters.Load(postID)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter.(*int64))
}

func newService(views *stubViewRepo, users *stubUserRepo, posts *stubPostRepo) *Service {
	return NewService(views, users, posts, zerolog.Nop())
}

func TestRecordView(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{}
	posts := &stubPostRepo{}
	service := newService(views, users, posts)

	userID := int64(7)
	duration := 42
	err := service.RecordView(context.Background(), RecordViewInput{PostID: 1, UserID: &userID, DurationSeconds: &duration})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(views.events) != 1 {
		t.Fatalf("ожидали 1 событие, получили %d", len(views.events))
	}
	if views.events[0].ID == "" {
		t.Fatalf("ожидали сгенерированный идентификатор события")
	}
	if len(users.history[userID]) != 1 {
		t.Fatalf("ожидали 1 запись истории")
	}
	if posts.count(1) != 1 {
		t.Fatalf("ожидали счётчик 1, получили %d", posts.count(1))
	}
}

func TestRecordViewAnonymousSkipsHistory(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{}
	posts := &stubPostRepo{}
	service := newService(views, users, posts)

	if err := service.RecordView(context.Background(), RecordViewInput{PostID: 3}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(users.history) != 0 {
		t.Fatalf("анонимный просмотр не должен трогать историю")
	}
	if posts.count(3) != 1 {
		t.Fatalf("ожидали счётчик 1")
	}
}

func TestRecordViewRepeatAppendsHistory(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{}
	posts := &stubPostRepo{}
	service := newService(views, users, posts)

	userID := int64(5)
	for i := 0; i < 3; i++ {
		if err := service.RecordView(context.Background(), RecordViewInput{PostID: 9, UserID: &userID}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if len(users.history[userID]) != 3 {
		t.Fatalf("повторные просмотры должны добавлять записи: получили %d", len(users.history[userID]))
	}
}

func TestRecordViewValidatesInput(t *testing.T) {
	service := newService(&stubViewRepo{}, &stubUserRepo{}, &stubPostRepo{})

	if err := service.RecordView(context.Background(), RecordViewInput{}); !errors.Is(err, ErrInvalidPost) {
		t.Fatalf("ожидали ErrInvalidPost, получили %v", err)
	}
	negative := -1
	err := service.RecordView(context.Background(), RecordViewInput{PostID: 1, DurationSeconds: &negative})
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("ожидали ErrInvalidDuration, получили %v", err)
	}
}

func TestRecordViewConcurrentCounter(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{}
	posts := &stubPostRepo{}
	service := newService(views, users, posts)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := service.RecordView(context.Background(), RecordViewInput{PostID: 1}); err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := posts.count(1); got != n {
		t.Fatalf("ожидали ровно %d инкрементов, получили %d", n, got)
	}
	if len(views.events) != n {
		t.Fatalf("ожидали %d событий, получили %d", n, len(views.events))
	}
}

func TestRecordViewHistoryFailureKeepsEvent(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{fail: errors.New("недоступно")}
	posts := &stubPostRepo{}
	service := newService(views, users, posts)

	userID := int64(1)
	err := service.RecordView(context.Background(), RecordViewInput{PostID: 2, UserID: &userID})
	if err == nil {
		t.Fatalf("ожидали ошибку шага истории")
	}
	// Первый шаг зафиксирован и не откатывается.
	if len(views.events) != 1 {
		t.Fatalf("событие должно остаться записанным")
	}
	// Последующий шаг не выполняется.
	if posts.count(2) != 0 {
		t.Fatalf("счётчик не должен меняться после ошибки истории")
	}
}

func TestRecordViewCounterFailureKeepsPriorSteps(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{}
	posts := &stubPostRepo{fail: errors.New("недоступно")}
	service := newService(views, users, posts)

	userID := int64(1)
	err := service.RecordView(context.Background(), RecordViewInput{PostID: 2, UserID: &userID})
	if err == nil {
		t.Fatalf("ожидали ошибку шага счётчика")
	}
	if len(views.events) != 1 || len(users.history[userID]) != 1 {
		t.Fatalf("событие и история должны остаться записанными")
	}
}

func TestRecordFromJob(t *testing.T) {
	views := &stubViewRepo{}
	users := &stubUserRepo{}
	posts := &stubPostRepo{}
	service := newService(views, users, posts)

	viewedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := service.RecordFromJob(context.Background(), domain.ViewJob{ID: "job", PostID: 4, ViewedAt: viewedAt})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(views.events) != 1 || !views.events[0].ViewedAt.Equal(viewedAt) {
		t.Fatalf("ожидали событие с временем из задачи")
	}
}

package domain

import (
	"context"
	"time"
)

// ViewJob содержит информацию об отложенной регистрации просмотра.
type ViewJob struct {
	ID              string    `json:"job_id"`
	PostID          int64     `json:"post_id"`
	UserID          *int64    `json:"user_id,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	ViewedAt        time.Time `json:"viewed_at"`
	RequestedAt     time.Time `json:"requested_at"`
}

// ViewQueue описывает очередь задач на регистрацию просмотров.
type ViewQueue interface {
	Enqueue(ctx context.Context, job ViewJob) error
	Receive(ctx context.Context) (ViewJob, ViewAckFunc, error)
}

// ViewAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type ViewAckFunc func(success bool) error

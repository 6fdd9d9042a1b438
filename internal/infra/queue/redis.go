package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"content-pulse/internal/domain"
)

// RedisViewQueue реализует очередь задач на базе Redis lists. Используется в
// dev-окружении и как запасной транспорт, когда RabbitMQ недоступен.
// Подтверждений доставки у Redis-списков нет: задача считается доставленной
// в момент чтения.
type RedisViewQueue struct {
	client *redis.Client
	key    string
}

// NewRedisViewQueue создаёт очередь по указанному ключу.
func NewRedisViewQueue(client *redis.Client, key string) *RedisViewQueue {
	return &RedisViewQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisViewQueue) Enqueue(ctx context.Context, job domain.ViewJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisViewQueue) Receive(ctx context.Context) (domain.ViewJob, domain.ViewAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ViewJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ViewJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ViewJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ViewJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.ViewJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.ViewJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			// Возврат в очередь при неуспехе, на повторную попытку.
			return q.Enqueue(context.Background(), job)
		}
		return job, ack, nil
	}
}

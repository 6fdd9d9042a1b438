package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"content-pulse/internal/domain"
	"content-pulse/internal/infra/metrics"
)

// RabbitViewQueue реализует очередь задач через AMQP с ручным подтверждением
// доставки. Очередь durable, сообщения персистентные: просмотр не должен
// теряться при перезапуске брокера.
type RabbitViewQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitViewQueue подключается к брокеру и объявляет очередь.
func NewRabbitViewQueue(amqpURL, queueName string) (*RabbitViewQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queueName == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitViewQueue{conn: conn, channel: channel, queue: queueName}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitViewQueue) Enqueue(ctx context.Context, job domain.ViewJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive читает задачу из очереди. Подтверждение откладывается до вызова
// ack: ack(true) подтверждает доставку, ack(false) возвращает задачу брокеру.
func (q *RabbitViewQueue) Receive(ctx context.Context) (domain.ViewJob, domain.ViewAckFunc, error) {
	if q.deliveries == nil {
		if err := q.channel.Qos(1, 0, false); err != nil {
			return domain.ViewJob{}, nil, fmt.Errorf("set qos: %w", err)
		}
		deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.ViewJob{}, nil, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}

	select {
	case <-ctx.Done():
		return domain.ViewJob{}, nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return domain.ViewJob{}, nil, errors.New("rabbitmq queue: канал доставки закрыт")
		}
		var job domain.ViewJob
		if err := json.Unmarshal(delivery.Body, &job); err != nil {
			// Непарсящееся сообщение повторять бессмысленно.
			_ = delivery.Nack(false, false)
			return domain.ViewJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return job, ack, nil
	}
}

// Close освобождает канал и соединение.
func (q *RabbitViewQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

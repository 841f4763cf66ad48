package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"media_bridge/internal/domain"
)

// ResultHandler consumes one download completion or failure report.
type ResultHandler func(ctx context.Context, res domain.DownloadResult)

// JobHandler consumes one submitted download job.
type JobHandler func(ctx context.Context, req domain.DownloadRequest)

type Config struct {
	URL          string
	Exchange     string
	JobsQueue    string
	ResultsQueue string
}

// RabbitMQ is the durable job queue: the bridge submits download jobs and
// subscribes to their results; the worker consumes jobs and publishes
// results.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *slog.Logger

	mu          sync.Mutex
	onCompleted []ResultHandler
	onFailed    []ResultHandler
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	// Each queue is bound with its own name as the routing key.
	for _, name := range []string{cfg.JobsQueue, cfg.ResultsQueue} {
		declared, err := ch.QueueDeclare(
			name,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}

		if err := ch.QueueBind(declared.Name, name, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue %s: %w", name, err)
		}
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"jobs_queue", cfg.JobsQueue,
		"results_queue", cfg.ResultsQueue,
	)

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
	}, nil
}

// Submit enqueues one download job on the named queue under the given job
// key. The queue name doubles as the routing key.
func (q *RabbitMQ) Submit(ctx context.Context, queueName, jobKey string, req domain.DownloadRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	err = q.channel.PublishWithContext(
		ctx,
		q.cfg.Exchange,
		queueName,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    jobKey,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}

	q.logger.Debug("submitted job", "job_key", jobKey, "download_id", req.DownloadID)
	return nil
}

// PublishResult reports the outcome of one job. Used by the worker.
func (q *RabbitMQ) PublishResult(ctx context.Context, res domain.DownloadResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	err = q.channel.PublishWithContext(
		ctx,
		q.cfg.Exchange,
		q.cfg.ResultsQueue,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    res.JobKey,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish result: %w", err)
	}

	q.logger.Debug("published result", "job_key", res.JobKey, "status", res.Status)
	return nil
}

// OnCompleted registers a handler for successful download results.
func (q *RabbitMQ) OnCompleted(h ResultHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onCompleted = append(q.onCompleted, h)
}

// OnFailed registers a handler for failed download results.
func (q *RabbitMQ) OnFailed(h ResultHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailed = append(q.onFailed, h)
}

// ConsumeResults blocks delivering results to the registered handlers until
// ctx is cancelled or the channel closes. A handler failure never stops the
// loop.
func (q *RabbitMQ) ConsumeResults(ctx context.Context) error {
	deliveries, err := q.channel.Consume(q.cfg.ResultsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume results: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("results channel closed")
			}
			q.dispatchResult(ctx, d)
		}
	}
}

func (q *RabbitMQ) dispatchResult(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if err := d.Ack(false); err != nil {
			q.logger.Error("failed to ack result", "error", err)
		}
	}()

	var res domain.DownloadResult
	if err := json.Unmarshal(d.Body, &res); err != nil {
		q.logger.Error("failed to decode result", "message_id", d.MessageId, "error", err)
		return
	}

	q.mu.Lock()
	var handlers []ResultHandler
	if res.Status == domain.ResultFailed {
		handlers = append(handlers, q.onFailed...)
	} else {
		handlers = append(handlers, q.onCompleted...)
	}
	q.mu.Unlock()

	for _, h := range handlers {
		h(ctx, res)
	}
}

// ConsumeJobs blocks delivering submitted jobs to handler until ctx is
// cancelled or the channel closes. Used by the worker.
func (q *RabbitMQ) ConsumeJobs(ctx context.Context, handler JobHandler) error {
	deliveries, err := q.channel.Consume(q.cfg.JobsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume jobs: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("jobs channel closed")
			}

			var req domain.DownloadRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				q.logger.Error("failed to decode job", "message_id", d.MessageId, "error", err)
				_ = d.Ack(false)
				continue
			}

			handler(ctx, req)
			if err := d.Ack(false); err != nil {
				q.logger.Error("failed to ack job", "job_key", req.JobKey, "error", err)
			}
		}
	}
}

func (q *RabbitMQ) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

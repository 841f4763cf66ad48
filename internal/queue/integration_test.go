//go:build integration

package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"media_bridge/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) newQueue(suffix string) *RabbitMQ {
	cfg := Config{
		URL:          s.amqpURL,
		Exchange:     "test-exchange-" + suffix,
		JobsQueue:    "test-jobs-" + suffix,
		ResultsQueue: "test-results-" + suffix,
	}

	q, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	return q
}

func (s *RabbitMQIntegrationSuite) TestConnection() {
	q := s.newQueue("conn")
	s.NoError(q.Close())
}

func (s *RabbitMQIntegrationSuite) TestSubmit_DeliveredWithKeyAndPersistence() {
	q := s.newQueue("submit")
	defer q.Close()

	req := domain.DownloadRequest{
		JobKey:      "1700000000-55511@c.us",
		URL:         "https://example.com/video",
		DownloadID:  "dl-1",
		MessageID:   "msg-1",
		ChatID:      "55511@c.us",
		RequestedAt: time.Now().Truncate(time.Millisecond),
	}

	s.NoError(q.Submit(s.ctx, q.cfg.JobsQueue, req.JobKey, req))

	d := s.consumeOne(q.cfg.JobsQueue)
	s.Require().NotNil(d)
	s.Equal("1700000000-55511@c.us", d.MessageId)
	s.Equal(uint8(amqp.Persistent), d.DeliveryMode)
	s.Equal("application/json", d.ContentType)

	var received domain.DownloadRequest
	s.NoError(json.Unmarshal(d.Body, &received))
	s.Equal("https://example.com/video", received.URL)
	s.Equal("dl-1", received.DownloadID)
	s.Equal("msg-1", received.MessageID)
}

func (s *RabbitMQIntegrationSuite) TestResults_RoutedToRegisteredHandlers() {
	q := s.newQueue("results")
	defer q.Close()

	var mu sync.Mutex
	var completed, failed []domain.DownloadResult

	q.OnCompleted(func(_ context.Context, res domain.DownloadResult) {
		mu.Lock()
		completed = append(completed, res)
		mu.Unlock()
	})
	q.OnFailed(func(_ context.Context, res domain.DownloadResult) {
		mu.Lock()
		failed = append(failed, res)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() { _ = q.ConsumeResults(ctx) }()

	s.NoError(q.PublishResult(s.ctx, domain.DownloadResult{
		JobKey:     "k1",
		Status:     domain.ResultCompleted,
		DownloadID: "dl-1",
		Artifacts:  []domain.Artifact{{Path: "a.mp4"}},
	}))
	s.NoError(q.PublishResult(s.ctx, domain.DownloadResult{
		JobKey:     "k2",
		Status:     domain.ResultFailed,
		DownloadID: "dl-2",
		Error:      "boom",
	}))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1 && len(failed) == 1
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal("dl-1", completed[0].DownloadID)
	s.Equal("boom", failed[0].Error)
}

func (s *RabbitMQIntegrationSuite) TestConsumeJobs_RoundTrip() {
	q := s.newQueue("jobs")
	defer q.Close()

	got := make(chan domain.DownloadRequest, 1)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		_ = q.ConsumeJobs(ctx, func(_ context.Context, req domain.DownloadRequest) {
			got <- req
		})
	}()

	req := domain.DownloadRequest{JobKey: "k", URL: "https://example.com", DownloadID: "dl"}
	s.NoError(q.Submit(s.ctx, q.cfg.JobsQueue, req.JobKey, req))

	select {
	case received := <-got:
		s.Equal("dl", received.DownloadID)
	case <-time.After(5 * time.Second):
		s.Fail("timeout waiting for job")
	}
}

func (s *RabbitMQIntegrationSuite) consumeOne(queueName string) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(queueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("timeout waiting for message")
		return nil
	}
}

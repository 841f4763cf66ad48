package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"media_bridge/internal/domain"
)

type UserStore interface {
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByContactID(ctx context.Context, contactID string) (*domain.User, error)
}

type DownloadStore interface {
	Create(ctx context.Context, job *domain.DownloadJob) error
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error
	MarkStaleFailed(ctx context.Context, before time.Time) ([]string, error)
}

type ErrorStore interface {
	Create(ctx context.Context, message, downloadID string) error
}

// Messenger is the outbound side of the messaging platform. Replies address
// messages by their platform-stable identifier; completion handlers must
// re-resolve the live message through MessageByID before replying.
type Messenger interface {
	Reply(ctx context.Context, messageID string, out domain.Outbound, opts *domain.ReplyOptions) error
	Chats(ctx context.Context) ([]domain.Chat, error)
	ChatMessages(ctx context.Context, chatID string) ([]domain.Message, error)
	MessageByID(ctx context.Context, id string) (*domain.Message, error)
}

type JobQueue interface {
	Submit(ctx context.Context, queue, jobKey string, req domain.DownloadRequest) error
}

// Notifier is the administrative channel.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

type Telemetry interface {
	TrackEvent(ctx context.Context, event, subjectID string, props map[string]any)
	Identify(ctx context.Context, subjectID string, traits map[string]any)
}

type BlobStore interface {
	Write(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
}

type Limiter interface {
	IsRateLimited(identity string) bool
}

// Readiness reports whether the inbound transport is in its operational
// state.
type Readiness interface {
	Ready() bool
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"media_bridge/internal/config"
	"media_bridge/internal/domain"
)

const (
	rateLimitNotice = "You're sending links too quickly. Please wait a bit before sending another one."
	failureNotice   = "Sorry, I couldn't download that link. Please try again later."
)

var stickerMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// DispatchService classifies inbound messages, admits link downloads through
// the rate limiter, hands them to the job queue and correlates queue results
// back to the originating conversation.
type DispatchService struct {
	users     UserStore
	downloads DownloadStore
	errors    ErrorStore
	messenger Messenger
	queue     JobQueue
	limiter   Limiter
	telemetry Telemetry
	blobs     BlobStore
	ready     Readiness
	logger    *slog.Logger
	cfg       config.DownloadsConfig
	queueName string
}

func NewDispatchService(
	users UserStore,
	downloads DownloadStore,
	errors ErrorStore,
	messenger Messenger,
	queue JobQueue,
	limiter Limiter,
	telemetry Telemetry,
	blobs BlobStore,
	ready Readiness,
	logger *slog.Logger,
	cfg config.DownloadsConfig,
	queueName string,
) *DispatchService {
	return &DispatchService{
		users:     users,
		downloads: downloads,
		errors:    errors,
		messenger: messenger,
		queue:     queue,
		limiter:   limiter,
		telemetry: telemetry,
		blobs:     blobs,
		ready:     ready,
		logger:    logger.With("component", "dispatch"),
		cfg:       cfg,
		queueName: queueName,
	}
}

// HandleInbound processes one inbound message. Failures are logged and
// swallowed so one bad message never affects the next.
func (s *DispatchService) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	if !s.ready.Ready() {
		s.logger.Debug("transport not ready, dropping inbound message", "message_id", msg.ID)
		return
	}
	if msg.FromMe || msg.IsGroup || msg.IsReadOnly {
		return
	}

	if err := s.processInbound(ctx, msg); err != nil {
		s.logger.Error("inbound message handling failed",
			"message_id", msg.ID,
			"chat_id", msg.ChatID,
			"error", err,
		)
	}
}

func (s *DispatchService) processInbound(ctx context.Context, msg domain.InboundMessage) error {
	user, err := s.users.Upsert(ctx, &domain.User{
		ContactID: msg.From.ID,
		Name:      msg.From.Name,
		Number:    msg.From.Number,
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	s.telemetry.TrackEvent(ctx, "message_received", msg.From.ID, map[string]any{
		"chat_id":     msg.ChatID,
		"device_type": msg.DeviceType,
		"has_media":   msg.HasMedia,
		"links":       len(msg.Links),
	})

	if msg.HasMedia && stickerMediaTypes[msg.MediaType] {
		// Independent of the link path; its failure never reaches it.
		go s.sendSticker(context.WithoutCancel(ctx), msg)
	}

	if len(msg.Links) == 0 {
		return nil
	}
	// Only the first link of a message is processed; the rest are ignored
	// by policy.
	link := msg.Links[0]

	if s.limiter.IsRateLimited(msg.ChatID) {
		s.logger.Info("download rejected by rate limit", "chat_id", msg.ChatID)
		if err := s.messenger.Reply(ctx, msg.ID, domain.Outbound{Text: rateLimitNotice}, nil); err != nil {
			return fmt.Errorf("send rate limit notice: %w", err)
		}
		return nil
	}

	job := &domain.DownloadJob{
		ID:          uuid.New().String(),
		SourceURL:   link,
		Status:      domain.JobStatusUnknown,
		OwnerID:     user.ID,
		RequestedAt: msg.Timestamp,
	}
	if err := s.downloads.Create(ctx, job); err != nil {
		return fmt.Errorf("create download job: %w", err)
	}

	key := domain.JobKey(msg.Timestamp, msg.ChatID)
	req := domain.DownloadRequest{
		JobKey:      key,
		URL:         link,
		DownloadID:  job.ID,
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		RequestedAt: msg.Timestamp,
	}
	if err := s.queue.Submit(ctx, s.queueName, key, req); err != nil {
		return fmt.Errorf("submit download job: %w", err)
	}

	s.logger.Info("download job submitted",
		"job_key", key,
		"download_id", job.ID,
		"chat_id", msg.ChatID,
	)
	return nil
}

func (s *DispatchService) sendSticker(ctx context.Context, msg domain.InboundMessage) {
	opts := &domain.ReplyOptions{
		SendMediaAsSticker: true,
		StickerAuthor:      s.cfg.StickerAuthor,
		StickerName:        s.cfg.StickerName,
	}
	if err := s.messenger.Reply(ctx, msg.ID, domain.Outbound{MediaPath: msg.MediaPath}, opts); err != nil {
		s.logger.Error("sticker reply failed", "message_id", msg.ID, "error", err)
		return
	}
	s.telemetry.TrackEvent(ctx, "sticker_created", msg.From.ID, map[string]any{
		"media_type": msg.MediaType,
	})
}

// HandleCompleted delivers the artifacts of a finished download back to the
// originating conversation and marks the job record sent.
func (s *DispatchService) HandleCompleted(ctx context.Context, res domain.DownloadResult) {
	if err := s.processCompleted(ctx, res); err != nil {
		s.logger.Error("completion handling failed",
			"job_key", res.JobKey,
			"download_id", res.DownloadID,
			"error", err,
		)
	}
}

func (s *DispatchService) processCompleted(ctx context.Context, res domain.DownloadResult) error {
	for _, artifact := range res.Artifacts {
		// The in-memory message did not survive the queue round-trip;
		// re-resolve it by its stable identifier.
		msg, err := s.messenger.MessageByID(ctx, res.MessageID)
		if err != nil {
			return fmt.Errorf("resolve message %s: %w", res.MessageID, err)
		}

		if err := s.messenger.Reply(ctx, msg.ID, domain.Outbound{MediaPath: artifact.Path}, nil); err != nil {
			return fmt.Errorf("deliver artifact %s: %w", artifact.Path, err)
		}

		if err := s.blobs.Remove(ctx, artifact.Path); err != nil {
			s.logger.Warn("failed to release artifact", "path", artifact.Path, "error", err)
		}

		s.telemetry.TrackEvent(ctx, "download_response", res.ChatID, map[string]any{
			"download_id": res.DownloadID,
			"mime_type":   artifact.MimeType,
		})
	}

	if err := s.downloads.UpdateStatus(ctx, res.DownloadID, domain.JobStatusSent); err != nil {
		return fmt.Errorf("mark job sent: %w", err)
	}

	s.logger.Info("download delivered",
		"download_id", res.DownloadID,
		"artifacts", len(res.Artifacts),
	)
	return nil
}

// HandleFailed notifies the requester and records the failure. Everything in
// here is best effort; secondary failures are only logged.
func (s *DispatchService) HandleFailed(ctx context.Context, res domain.DownloadResult) {
	msg, err := s.messenger.MessageByID(ctx, res.MessageID)
	if err != nil {
		s.logger.Error("failed to resolve message for failure notice",
			"message_id", res.MessageID,
			"error", err,
		)
	} else if err := s.messenger.Reply(ctx, msg.ID, domain.Outbound{Text: failureNotice}, nil); err != nil {
		s.logger.Error("failed to send failure notice", "message_id", res.MessageID, "error", err)
	}

	if err := s.errors.Create(ctx, res.Error, res.DownloadID); err != nil {
		s.logger.Error("failed to record download error", "download_id", res.DownloadID, "error", err)
	}

	if err := s.downloads.UpdateStatus(ctx, res.DownloadID, domain.JobStatusFailed); err != nil {
		s.logger.Error("failed to mark job failed", "download_id", res.DownloadID, "error", err)
	}

	s.telemetry.TrackEvent(ctx, "download_failed", res.ChatID, map[string]any{
		"download_id": res.DownloadID,
		"error":       res.Error,
	})
}

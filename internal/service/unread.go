package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"media_bridge/internal/domain"
)

// UnreadService rebuilds the unread-conversation index on every pass and
// sweeps download jobs that never received a worker report.
type UnreadService struct {
	messenger  Messenger
	notifier   Notifier
	downloads  DownloadStore
	errors     ErrorStore
	tx         TransactionManager
	telemetry  Telemetry
	logger     *slog.Logger
	staleAfter time.Duration

	mu        sync.Mutex
	lastTotal int
	hasLast   bool
}

func NewUnreadService(
	messenger Messenger,
	notifier Notifier,
	downloads DownloadStore,
	errors ErrorStore,
	tx TransactionManager,
	telemetry Telemetry,
	logger *slog.Logger,
	staleAfter time.Duration,
) *UnreadService {
	return &UnreadService{
		messenger:  messenger,
		notifier:   notifier,
		downloads:  downloads,
		errors:     errors,
		tx:         tx,
		telemetry:  telemetry,
		logger:     logger.With("component", "unread"),
		staleAfter: staleAfter,
	}
}

// Reconcile runs one full pass. The index is rebuilt from scratch; only a
// changed total is reported to the administrative channel.
func (s *UnreadService) Reconcile(ctx context.Context) (*domain.ReconcileStats, error) {
	start := time.Now()

	index, scanned, err := s.BuildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("build unread index: %w", err)
	}

	stats := &domain.ReconcileStats{
		ChatsScanned: scanned,
		UnreadChats:  len(index.Chats),
		UnreadTotal:  index.Total,
	}

	s.mu.Lock()
	stats.TotalChanged = !s.hasLast || index.Total != s.lastTotal
	s.lastTotal = index.Total
	s.hasLast = true
	s.mu.Unlock()

	if stats.TotalChanged {
		text := fmt.Sprintf("Unread: %d messages across %d conversations.", index.Total, len(index.Chats))
		if err := s.notifier.SendMessage(ctx, text); err != nil {
			s.logger.Error("failed to report unread total", "error", err)
			stats.Errors++
		}
		s.telemetry.TrackEvent(ctx, "unread_total_changed", "transport", map[string]any{
			"total": index.Total,
			"chats": len(index.Chats),
		})
	}

	swept, err := s.sweepStale(ctx)
	if err != nil {
		s.logger.Error("stale job sweep failed", "error", err)
		stats.Errors++
	}
	stats.StaleFailed = swept

	stats.Duration = time.Since(start)
	s.logger.Info("reconciliation pass completed",
		"chats_scanned", stats.ChatsScanned,
		"unread_chats", stats.UnreadChats,
		"unread_total", stats.UnreadTotal,
		"total_changed", stats.TotalChanged,
		"stale_failed", stats.StaleFailed,
		"duration", stats.Duration,
	)
	return stats, nil
}

// BuildIndex enumerates all chats and collects, for each chat with unread
// messages, the most recent UnreadCount entries of its history in
// chronological order. Returns the index and the number of chats scanned.
func (s *UnreadService) BuildIndex(ctx context.Context) (*domain.UnreadIndex, int, error) {
	chats, err := s.messenger.Chats(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}

	index := &domain.UnreadIndex{Chats: make(map[string][]domain.Message)}
	for _, chat := range chats {
		if chat.UnreadCount <= 0 {
			continue
		}

		history, err := s.messenger.ChatMessages(ctx, chat.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch history for chat %s: %w", chat.ID, err)
		}

		n := chat.UnreadCount
		if n > len(history) {
			n = len(history)
		}
		// History arrives oldest first, so the unread subset is its tail.
		unread := history[len(history)-n:]

		index.Chats[chat.ID] = unread
		index.Total += len(unread)
	}

	return index, len(chats), nil
}

func (s *UnreadService) sweepStale(ctx context.Context) (int, error) {
	if s.staleAfter <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-s.staleAfter)
	var ids []string
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		ids, err = s.downloads.MarkStaleFailed(txCtx, cutoff)
		if err != nil {
			return fmt.Errorf("mark stale jobs: %w", err)
		}
		for _, id := range ids {
			if err := s.errors.Create(txCtx, "download expired before a worker reported a result", id); err != nil {
				return fmt.Errorf("record stale job error: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		s.logger.Warn("expired stale download jobs", "count", len(ids))
	}
	return len(ids), nil
}

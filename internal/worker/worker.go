package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"media_bridge/internal/config"
	"media_bridge/internal/domain"
)

// ResultPublisher is the reporting half of the job queue.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res domain.DownloadResult) error
}

// BlobStore persists fetched artifacts.
type BlobStore interface {
	Write(ctx context.Context, path string, data []byte) error
}

// Worker fetches requested downloads and reports the outcome. Every consumed
// request produces exactly one result, completed or failed.
type Worker struct {
	httpClient     *http.Client
	blobs          BlobStore
	publisher      ResultPublisher
	maxFetchSize   int64
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg config.DownloadsConfig, blobs BlobStore, publisher ResultPublisher, logger *slog.Logger) *Worker {
	return &Worker{
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		blobs:          blobs,
		publisher:      publisher,
		maxFetchSize:   cfg.MaxFetchSize,
		maxAttempts:    cfg.Retry.MaxAttempts,
		initialBackoff: cfg.Retry.InitialBackoff,
		maxBackoff:     cfg.Retry.MaxBackoff,
		logger:         logger.With("component", "worker"),
	}
}

// Handle processes one download request end to end.
func (w *Worker) Handle(ctx context.Context, req domain.DownloadRequest) {
	result := w.process(ctx, req)

	result.JobKey = req.JobKey
	result.DownloadID = req.DownloadID
	result.MessageID = req.MessageID
	result.ChatID = req.ChatID

	if err := w.publisher.PublishResult(ctx, *result); err != nil {
		w.logger.Error("failed to publish download result",
			"job_key", req.JobKey,
			"status", result.Status,
			"error", err,
		)
	}
}

func (w *Worker) process(ctx context.Context, req domain.DownloadRequest) *domain.DownloadResult {
	data, mimeType, attempts, err := w.fetch(ctx, req.URL)
	if err != nil {
		w.logger.Warn("download failed",
			"job_key", req.JobKey,
			"url", req.URL,
			"attempts", attempts,
			"error", err,
		)
		return &domain.DownloadResult{
			Status:   domain.ResultFailed,
			Error:    err.Error(),
			Attempts: attempts,
		}
	}

	artifactPath := fmt.Sprintf("%s/%s%s", req.JobKey, uuid.New().String(), extensionFor(mimeType, req.URL))
	if err := w.blobs.Write(ctx, artifactPath, data); err != nil {
		w.logger.Error("failed to store artifact", "job_key", req.JobKey, "error", err)
		return &domain.DownloadResult{
			Status:   domain.ResultFailed,
			Error:    fmt.Sprintf("store artifact: %v", err),
			Attempts: attempts,
		}
	}

	w.logger.Info("download completed",
		"job_key", req.JobKey,
		"path", artifactPath,
		"size", len(data),
		"attempts", attempts,
	)
	return &domain.DownloadResult{
		Status: domain.ResultCompleted,
		Artifacts: []domain.Artifact{
			{Path: artifactPath, MimeType: mimeType, Size: int64(len(data))},
		},
		Attempts: attempts,
	}
}

func (w *Worker) fetch(ctx context.Context, rawURL string) (data []byte, mimeType string, attempts int, err error) {
	for attempts = 1; attempts <= w.maxAttempts; attempts++ {
		data, mimeType, err = w.doFetch(ctx, rawURL)
		if err == nil {
			return data, mimeType, attempts, nil
		}

		if attempts == w.maxAttempts {
			break
		}

		backoff := w.calculateBackoff(attempts)
		w.logger.Warn("fetch failed, retrying",
			"url", rawURL,
			"attempt", attempts,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, "", attempts, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, "", w.maxAttempts, fmt.Errorf("after %d attempts: %w", w.maxAttempts, err)
}

func (w *Worker) doFetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// One byte past the cap distinguishes "exactly the cap" from "too big".
	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxFetchSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > w.maxFetchSize {
		return nil, "", fmt.Errorf("response exceeds %d bytes", w.maxFetchSize)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return data, mimeType, nil
}

func (w *Worker) calculateBackoff(attempt int) time.Duration {
	backoff := w.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > w.maxBackoff {
		backoff = w.maxBackoff
	}
	return backoff
}

// extensionFor derives a file extension from the Content-Type, falling back
// to the URL path.
func extensionFor(mimeType, rawURL string) string {
	if mimeType != "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".bin"
}

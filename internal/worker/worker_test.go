package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"media_bridge/internal/config"
	"media_bridge/internal/domain"
)

type fakeBlobStore struct {
	written map[string][]byte
	err     error
}

func (f *fakeBlobStore) Write(_ context.Context, path string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = map[string][]byte{}
	}
	f.written[path] = data
	return nil
}

type fakePublisher struct {
	results []domain.DownloadResult
}

func (f *fakePublisher) PublishResult(_ context.Context, res domain.DownloadResult) error {
	f.results = append(f.results, res)
	return nil
}

func newTestWorker(blobs *fakeBlobStore, pub *fakePublisher, maxSize int64) *Worker {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(config.DownloadsConfig{
		FetchTimeout: time.Second,
		MaxFetchSize: maxSize,
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}, blobs, pub, logger)
}

func request(u string) domain.DownloadRequest {
	return domain.DownloadRequest{
		JobKey:      "1700000000-chat-1",
		URL:         u,
		DownloadID:  "dl-1",
		MessageID:   "msg-1",
		ChatID:      "chat-1",
		RequestedAt: time.Unix(1700000000, 0),
	}
}

func TestWorker_CompletedDownload(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{}
	pub := &fakePublisher{}
	w := newTestWorker(blobs, pub, 1<<20)

	w.Handle(context.Background(), request(srv.URL+"/image.png"))

	require.Len(t, pub.results, 1)
	res := pub.results[0]
	require.Equal(t, domain.ResultCompleted, res.Status)
	require.Equal(t, "1700000000-chat-1", res.JobKey)
	require.Equal(t, "dl-1", res.DownloadID)
	require.Equal(t, "msg-1", res.MessageID)
	require.Equal(t, 1, res.Attempts)

	require.Len(t, res.Artifacts, 1)
	artifact := res.Artifacts[0]
	require.Equal(t, "image/png", artifact.MimeType)
	require.Equal(t, int64(len(payload)), artifact.Size)
	require.True(t, strings.HasPrefix(artifact.Path, "1700000000-chat-1/"))
	require.True(t, strings.HasSuffix(artifact.Path, ".png"))
	require.Equal(t, payload, blobs.written[artifact.Path])
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	w := newTestWorker(&fakeBlobStore{}, pub, 1<<20)

	w.Handle(context.Background(), request(srv.URL))

	require.Len(t, pub.results, 1)
	require.Equal(t, domain.ResultCompleted, pub.results[0].Status)
	require.Equal(t, 3, pub.results[0].Attempts)
}

func TestWorker_FailureAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	w := newTestWorker(&fakeBlobStore{}, pub, 1<<20)

	w.Handle(context.Background(), request(srv.URL))

	require.Equal(t, int32(3), calls.Load())
	require.Len(t, pub.results, 1)
	res := pub.results[0]
	require.Equal(t, domain.ResultFailed, res.Status)
	require.Empty(t, res.Artifacts)
	require.Contains(t, res.Error, "unexpected status: 404")
	require.Equal(t, "dl-1", res.DownloadID)
}

func TestWorker_RejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(make([]byte, 100)) //nolint:errcheck
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	w := newTestWorker(&fakeBlobStore{}, pub, 10)

	w.Handle(context.Background(), request(srv.URL))

	require.Len(t, pub.results, 1)
	require.Equal(t, domain.ResultFailed, pub.results[0].Status)
	require.Contains(t, pub.results[0].Error, "exceeds 10 bytes")
}

func TestWorker_StoreFailureReportsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	w := newTestWorker(&fakeBlobStore{err: errors.New("disk full")}, pub, 1<<20)

	w.Handle(context.Background(), request(srv.URL))

	require.Len(t, pub.results, 1)
	require.Equal(t, domain.ResultFailed, pub.results[0].Status)
	require.Contains(t, pub.results[0].Error, "disk full")
}

func TestExtensionFor(t *testing.T) {
	require.Equal(t, ".png", extensionFor("image/png", "https://example.com/x"))
	require.Equal(t, ".gif", extensionFor("image/gif", "https://example.com/x"))
	require.Equal(t, ".mp4", extensionFor("", "https://example.com/clip.mp4?x=1"))
	require.Equal(t, ".bin", extensionFor("", "https://example.com/stream"))
}

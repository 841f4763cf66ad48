package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"media_bridge/internal/config"
	"media_bridge/internal/domain"
)

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(config.GatewayConfig{
		SidecarURL: baseURL,
		Timeout:    time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}, logger)
}

func TestClient_Reply(t *testing.T) {
	var got replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/reply", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Reply(context.Background(), "msg-1",
		domain.Outbound{MediaPath: "k/a.jpg"},
		&domain.ReplyOptions{SendMediaAsSticker: true, StickerAuthor: "bridge"},
	)

	require.NoError(t, err)
	require.Equal(t, "msg-1", got.MessageID)
	require.Equal(t, "k/a.jpg", got.MediaPath)
	require.NotNil(t, got.Options)
	require.True(t, got.Options.SendMediaAsSticker)
}

func TestClient_Chats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chats", r.URL.Path)
		json.NewEncoder(w).Encode([]domain.Chat{ //nolint:errcheck
			{ID: "chat-1", Name: "Alice", UnreadCount: 3},
			{ID: "chat-2", IsGroup: true},
		})
	}))
	defer srv.Close()

	chats, err := newTestClient(srv.URL).Chats(context.Background())

	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, 3, chats[0].UnreadCount)
	require.True(t, chats[1].IsGroup)
}

func TestClient_ChatMessagesEscapesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chats/chat%2F1/messages", r.URL.EscapedPath())
		json.NewEncoder(w).Encode([]domain.Message{{ID: "m-1"}}) //nolint:errcheck
	}))
	defer srv.Close()

	history, err := newTestClient(srv.URL).ChatMessages(context.Background(), "chat/1")

	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestClient_MessageByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages/msg-1", r.URL.Path)
		json.NewEncoder(w).Encode(domain.Message{ID: "msg-1", ChatID: "chat-1"}) //nolint:errcheck
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).MessageByID(context.Background(), "msg-1")

	require.NoError(t, err)
	require.Equal(t, "chat-1", msg.ChatID)
}

func TestClient_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]domain.Chat{}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chats(context.Background())

	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chats(context.Background())

	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Contains(t, err.Error(), "after 3 attempts")
}

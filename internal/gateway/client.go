package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media_bridge/internal/config"
	"media_bridge/internal/domain"
)

// Client is the outbound half of the sidecar bridge. It implements the
// messenger operations over the sidecar's REST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func NewClient(cfg config.GatewayConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.SidecarURL, "/"),
		maxAttempts:    cfg.Retry.MaxAttempts,
		initialBackoff: cfg.Retry.InitialBackoff,
		maxBackoff:     cfg.Retry.MaxBackoff,
		logger:         logger.With("component", "gateway_client"),
	}
}

type replyRequest struct {
	MessageID string               `json:"message_id"`
	Text      string               `json:"text,omitempty"`
	MediaPath string               `json:"media_path,omitempty"`
	Options   *domain.ReplyOptions `json:"options,omitempty"`
}

// Reply addresses a message by its platform identifier. Errors out when the
// sidecar no longer knows the message.
func (c *Client) Reply(ctx context.Context, messageID string, out domain.Outbound, opts *domain.ReplyOptions) error {
	body := replyRequest{
		MessageID: messageID,
		Text:      out.Text,
		MediaPath: out.MediaPath,
		Options:   opts,
	}
	return c.post(ctx, "/reply", body)
}

func (c *Client) Chats(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	if err := c.get(ctx, "/chats", &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) ChatMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var history []domain.Message
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if err := c.get(ctx, path, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) MessageByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	path := fmt.Sprintf("/messages/%s", url.PathEscape(id))
	if err := c.get(ctx, path, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		return c.do(req, out)
	})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		return c.do(req, nil)
	})
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("sidecar request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

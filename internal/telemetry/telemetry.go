package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sink transmits analytics events. Implementations are fire-and-forget: they
// must never surface failures to callers.
type Sink interface {
	TrackEvent(ctx context.Context, event, subjectID string, props map[string]any)
	Identify(ctx context.Context, subjectID string, traits map[string]any)
}

// HTTPSink posts events to an analytics collector endpoint. Delivery happens
// on a separate goroutine and errors are only logged.
type HTTPSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPSink(endpoint, apiKey string, logger *slog.Logger) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With("component", "telemetry"),
	}
}

type event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Event      string         `json:"event,omitempty"`
	SubjectID  string         `json:"subject_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Traits     map[string]any `json:"traits,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (s *HTTPSink) TrackEvent(_ context.Context, name, subjectID string, props map[string]any) {
	go s.send(event{
		ID:         uuid.New().String(),
		Type:       "track",
		Event:      name,
		SubjectID:  subjectID,
		Properties: props,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *HTTPSink) Identify(_ context.Context, subjectID string, traits map[string]any) {
	go s.send(event{
		ID:        uuid.New().String(),
		Type:      "identify",
		SubjectID: subjectID,
		Traits:    traits,
		Timestamp: time.Now().UTC(),
	})
}

func (s *HTTPSink) send(e event) {
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Debug("failed to encode event", "event", e.Event, "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Debug("failed to build request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("failed to deliver event", "event", e.Event, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Debug("collector rejected event", "event", e.Event, "status", resp.StatusCode)
	}
}

// Noop discards all events. Used when no collector endpoint is configured.
type Noop struct{}

func (Noop) TrackEvent(context.Context, string, string, map[string]any) {}
func (Noop) Identify(context.Context, string, map[string]any)          {}

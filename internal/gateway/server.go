package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"media_bridge/internal/domain"
	"media_bridge/internal/lifecycle"
)

// Dispatcher consumes inbound messages pushed by the sidecar.
type Dispatcher interface {
	HandleInbound(ctx context.Context, msg domain.InboundMessage)
}

// Lifecycle receives transport state changes and pairing codes.
type Lifecycle interface {
	Transition(ctx context.Context, next lifecycle.State)
	HandleQR(ctx context.Context, imagePath string) error
}

// QRStore persists pairing images. The image has to end up on local disk so
// the notifier can upload it, which is why Path is part of the contract.
type QRStore interface {
	Write(ctx context.Context, path string, data []byte) error
	Path(path string) string
}

// Server receives webhook events from the messaging-platform sidecar.
type Server struct {
	dispatcher Dispatcher
	machine    Lifecycle
	qr         QRStore
	logger     *slog.Logger
	addr       string
}

func NewServer(addr string, dispatcher Dispatcher, machine Lifecycle, qr QRStore, logger *slog.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		machine:    machine,
		qr:         qr,
		logger:     logger.With("component", "gateway_server"),
		addr:       addr,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events/message", s.handleMessage)
	mux.HandleFunc("POST /events/qr", s.handleQR)
	mux.HandleFunc("POST /events/state", s.handleState)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run serves webhook events until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown webhook server: %w", err)
		}
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.badRequest(w, "decode message event", err)
		return
	}
	if msg.ID == "" || msg.ChatID == "" {
		http.Error(w, "message id and chat id are required", http.StatusBadRequest)
		return
	}

	s.dispatcher.HandleInbound(r.Context(), msg)
	w.WriteHeader(http.StatusNoContent)
}

type qrEvent struct {
	Image string `json:"image"`
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	var event qrEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.badRequest(w, "decode qr event", err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(event.Image)
	if err != nil {
		s.badRequest(w, "decode qr image", err)
		return
	}

	const qrPath = "qr/qr.png"
	if err := s.qr.Write(r.Context(), qrPath, data); err != nil {
		s.logger.Error("failed to persist qr image", "error", err)
		http.Error(w, "failed to persist qr image", http.StatusInternalServerError)
		return
	}

	if err := s.machine.HandleQR(r.Context(), s.qr.Path(qrPath)); err != nil {
		s.logger.Error("failed to relay qr code", "error", err)
		http.Error(w, "failed to relay qr code", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stateEvent struct {
	State string `json:"state"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var event stateEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.badRequest(w, "decode state event", err)
		return
	}

	next, err := lifecycle.ParseState(event.State)
	if err != nil {
		s.badRequest(w, "parse state", err)
		return
	}

	s.machine.Transition(r.Context(), next)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) badRequest(w http.ResponseWriter, what string, err error) {
	s.logger.Debug("rejected webhook payload", "what", what, "error", err)
	http.Error(w, fmt.Sprintf("%s: %v", what, err), http.StatusBadRequest)
}

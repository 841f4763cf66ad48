package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type State int

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateAuthenticated
	StateReady
	StateAuthFailure
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateAuthFailure:
		return "auth_failure"
	default:
		return "unknown"
	}
}

func ParseState(s string) (State, error) {
	switch s {
	case "disconnected":
		return StateDisconnected, nil
	case "authenticating", "qr":
		return StateAuthenticating, nil
	case "authenticated":
		return StateAuthenticated, nil
	case "ready":
		return StateReady, nil
	case "auth_failure":
		return StateAuthFailure, nil
	default:
		return StateDisconnected, fmt.Errorf("unknown lifecycle state %q", s)
	}
}

// Notifier is the slice of the administrative channel the machine needs.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
	SendImage(ctx context.Context, path string) (string, error)
	UpdateImage(ctx context.Context, path, ref string) (string, error)
	DeleteMessage(ctx context.Context, ref string) error
}

// Telemetry is the slice of the telemetry sink the machine needs.
type Telemetry interface {
	TrackEvent(ctx context.Context, event, subjectID string, props map[string]any)
}

// Machine tracks the authentication/connectivity state of the inbound
// transport. Transitions are idempotent: receiving the same underlying
// signal twice performs the side effects once.
type Machine struct {
	mu    sync.Mutex
	state State
	qrRef string

	notifier  Notifier
	telemetry Telemetry
	logger    *slog.Logger
}

func NewMachine(notifier Notifier, telemetry Telemetry, logger *slog.Logger) *Machine {
	return &Machine{
		state:     StateDisconnected,
		notifier:  notifier,
		telemetry: telemetry,
		logger:    logger.With("component", "lifecycle"),
	}
}

// Ready reports whether the transport is in the only state in which
// dispatch and reconciliation may run.
func (m *Machine) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to next. Duplicate signals are no-ops; a real
// transition emits exactly one telemetry event and, depending on the target
// state, notifies the administrative channel or retracts a pending
// authentication prompt.
func (m *Machine) Transition(ctx context.Context, next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next

	var retract string
	if next == StateReady && m.qrRef != "" {
		retract = m.qrRef
		m.qrRef = ""
	}
	m.mu.Unlock()

	m.logger.Info("transport state changed", "from", prev.String(), "to", next.String())
	m.telemetry.TrackEvent(ctx, "lifecycle_transition", "transport", map[string]any{
		"from": prev.String(),
		"to":   next.String(),
	})

	if retract != "" {
		if err := m.notifier.DeleteMessage(ctx, retract); err != nil {
			m.logger.Error("failed to retract auth prompt", "ref", retract, "error", err)
		}
	}

	switch next {
	case StateReady:
		if err := m.notifier.SendMessage(ctx, "Transport connected and ready."); err != nil {
			m.logger.Error("failed to notify admin channel", "error", err)
		}
	case StateAuthFailure:
		if err := m.notifier.SendMessage(ctx, "Authentication failed. Manual re-authentication required."); err != nil {
			m.logger.Error("failed to notify admin channel", "error", err)
		}
	case StateDisconnected:
		if err := m.notifier.SendMessage(ctx, "Transport disconnected."); err != nil {
			m.logger.Error("failed to notify admin channel", "error", err)
		}
	}
}

// HandleQR relays an authentication prompt image to the administrative
// channel. The first prompt posts a new image; later prompts edit the
// existing one in place.
func (m *Machine) HandleQR(ctx context.Context, imagePath string) error {
	m.mu.Lock()
	ref := m.qrRef
	m.mu.Unlock()

	var (
		newRef string
		err    error
	)
	if ref == "" {
		newRef, err = m.notifier.SendImage(ctx, imagePath)
	} else {
		newRef, err = m.notifier.UpdateImage(ctx, imagePath, ref)
	}
	if err != nil {
		return fmt.Errorf("relay auth prompt: %w", err)
	}

	m.mu.Lock()
	m.qrRef = newRef
	m.mu.Unlock()

	m.telemetry.TrackEvent(ctx, "qr_displayed", "transport", nil)
	return nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"media_bridge/internal/domain"
	"media_bridge/internal/lifecycle"
)

type fakeDispatcher struct {
	inbound []domain.InboundMessage
}

func (f *fakeDispatcher) HandleInbound(_ context.Context, msg domain.InboundMessage) {
	f.inbound = append(f.inbound, msg)
}

type fakeLifecycle struct {
	transitions []lifecycle.State
	qrPaths     []string
	qrErr       error
}

func (f *fakeLifecycle) Transition(_ context.Context, next lifecycle.State) {
	f.transitions = append(f.transitions, next)
}

func (f *fakeLifecycle) HandleQR(_ context.Context, imagePath string) error {
	f.qrPaths = append(f.qrPaths, imagePath)
	return f.qrErr
}

type fakeQRStore struct {
	root    string
	written map[string][]byte
}

func (f *fakeQRStore) Write(_ context.Context, path string, data []byte) error {
	if f.written == nil {
		f.written = map[string][]byte{}
	}
	f.written[path] = data
	return nil
}

func (f *fakeQRStore) Path(path string) string {
	return filepath.Join(f.root, path)
}

func newTestServer() (*Server, *fakeDispatcher, *fakeLifecycle, *fakeQRStore) {
	dispatcher := &fakeDispatcher{}
	machine := &fakeLifecycle{}
	qr := &fakeQRStore{root: "/var/lib/bridge"}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer(":0", dispatcher, machine, qr, logger), dispatcher, machine, qr
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_MessageEvent(t *testing.T) {
	srv, dispatcher, _, _ := newTestServer()

	msg := domain.InboundMessage{
		ID:     "msg-1",
		ChatID: "chat-1",
		Body:   "hello https://example.com",
		Links:  []string{"https://example.com"},
	}
	rec := postJSON(t, srv.Handler(), "/events/message", msg)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, dispatcher.inbound, 1)
	require.Equal(t, "msg-1", dispatcher.inbound[0].ID)
	require.Equal(t, []string{"https://example.com"}, dispatcher.inbound[0].Links)
}

func TestServer_MessageEventMissingIDs(t *testing.T) {
	srv, dispatcher, _, _ := newTestServer()

	rec := postJSON(t, srv.Handler(), "/events/message", domain.InboundMessage{Body: "no ids"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, dispatcher.inbound)
}

func TestServer_MessageEventMalformedBody(t *testing.T) {
	srv, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/events/message", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_QREvent(t *testing.T) {
	srv, _, machine, qr := newTestServer()

	image := []byte{0x89, 'P', 'N', 'G'}
	rec := postJSON(t, srv.Handler(), "/events/qr", qrEvent{
		Image: base64.StdEncoding.EncodeToString(image),
	})

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, image, qr.written["qr/qr.png"])
	require.Equal(t, []string{filepath.Join("/var/lib/bridge", "qr/qr.png")}, machine.qrPaths)
}

func TestServer_QREventBadBase64(t *testing.T) {
	srv, _, machine, _ := newTestServer()

	rec := postJSON(t, srv.Handler(), "/events/qr", qrEvent{Image: "not base64 %%"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, machine.qrPaths)
}

func TestServer_StateEvent(t *testing.T) {
	srv, _, machine, _ := newTestServer()

	for _, tc := range []struct {
		raw  string
		want lifecycle.State
	}{
		{"ready", lifecycle.StateReady},
		{"authenticated", lifecycle.StateAuthenticated},
		{"qr", lifecycle.StateAuthenticating},
		{"disconnected", lifecycle.StateDisconnected},
	} {
		rec := postJSON(t, srv.Handler(), "/events/state", stateEvent{State: tc.raw})
		require.Equal(t, http.StatusNoContent, rec.Code, tc.raw)
	}

	require.Equal(t, []lifecycle.State{
		lifecycle.StateReady,
		lifecycle.StateAuthenticated,
		lifecycle.StateAuthenticating,
		lifecycle.StateDisconnected,
	}, machine.transitions)
}

func TestServer_StateEventUnknown(t *testing.T) {
	srv, _, machine, _ := newTestServer()

	rec := postJSON(t, srv.Handler(), "/events/state", stateEvent{State: "warp-drive"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, machine.transitions)
}

func TestServer_Health(t *testing.T) {
	srv, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nuclight.org/who-update-bot/app/updates"
	e "nuclight.org/who-update-bot/pkg/entities"
	"nuclight.org/who-update-bot/pkg/logger"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []updates.Update
	outcome e.Outcome
	err     error
	panic   bool
}

func (h *recordingHandler) HandleUpdate(ctx context.Context, upd updates.Update) (e.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		return e.Outcome{}, errors.New("no deadline")
	}
	if h.panic {
		panic("boom")
	}

	h.updates = append(h.updates, upd)
	return h.outcome, h.err
}

func newTestServer(h UpdateHandler) *Server {
	return &Server{
		Log:     logger.Discard(),
		Handler: h,
		Timeout: time.Second,
	}
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Routes().ServeHTTP(rec, req)

	return rec
}

func assertAck(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Ack, rec.Body.String())
}

func TestWebhookHandlesUpdate(t *testing.T) {
	h := &recordingHandler{outcome: e.Outcome{Kind: e.OutcomeKindSaved}}
	s := newTestServer(h)

	rec := post(t, s, DefaultPath, `{"update_id": 3, "business_message": {"message_id": 42, "text": "hi"}}`)

	assertAck(t, rec)
	require.Len(t, h.updates, 1)
	assert.Equal(t, updates.KindNewMessage, h.updates[0].Kind)
	assert.Equal(t, int64(42), h.updates[0].Message.MessageID)
}

func TestWebhookSwallowsMalformedPayload(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(h)

	for _, body := range []string{"", "{", "not json", "[]"} {
		assertAck(t, post(t, s, DefaultPath, body))
	}
	assert.Empty(t, h.updates)
}

func TestWebhookSwallowsHandlerError(t *testing.T) {
	h := &recordingHandler{outcome: e.Outcome{Kind: e.OutcomeKindNoop}, err: errors.New("db is gone")}
	s := newTestServer(h)

	assertAck(t, post(t, s, DefaultPath, `{"message": {"message_id": 1, "text": "x"}}`))
	assert.Len(t, h.updates, 1)
}

func TestWebhookRecoversPanic(t *testing.T) {
	h := &recordingHandler{panic: true}
	s := newTestServer(h)

	assertAck(t, post(t, s, DefaultPath, `{"message": {"message_id": 1, "text": "x"}}`))
}

func TestWebhookRejectsHugeBodyQuietly(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(h)

	body := `{"message": {"text": "` + strings.Repeat("a", maxBodySize) + `"}}`
	assertAck(t, post(t, s, DefaultPath, body))
	assert.Empty(t, h.updates)
}

func TestWebhookCustomPath(t *testing.T) {
	h := &recordingHandler{outcome: e.Outcome{Kind: e.OutcomeKindSaved}}
	s := newTestServer(h)
	s.Path = "/hook/"

	assertAck(t, post(t, s, "/hook/", `{"message": {"message_id": 1, "text": "x"}}`))
	assert.Len(t, h.updates, 1)
}

func TestIndex(t *testing.T) {
	s := newTestServer(&recordingHandler{})

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, indexBody, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h := &recordingHandler{outcome: e.Outcome{Kind: e.OutcomeKindSaved}}
	s := newTestServer(h)

	post(t, s, DefaultPath, `{"business_message": {"message_id": 1, "text": "x"}}`)
	post(t, s, DefaultPath, `broken`)

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `whoupdate_updates_total{kind="new_message",origin="business"} 1`)
	assert.Contains(t, body, `whoupdate_outcomes_total{outcome="saved"} 1`)
	assert.Contains(t, body, `whoupdate_webhook_errors_total{stage="parse"} 1`)
	assert.Contains(t, body, "whoupdate_webhook_duration_seconds_count 2")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := newTestServer(&recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenAndServeBadAddr(t *testing.T) {
	s := newTestServer(&recordingHandler{})

	err := s.ListenAndServe(context.Background(), "256.0.0.1:http-bad")
	require.Error(t, err)
}

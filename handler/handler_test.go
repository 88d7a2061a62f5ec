package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/integrations/line"
)

const testSecret = "channel-secret"

type stubEvents struct {
	seen  []domain.Event
	errOn string
	panic bool
}

func (s *stubEvents) HandleEvent(_ context.Context, ev domain.Event) error {
	if s.panic {
		panic("boom")
	}
	s.seen = append(s.seen, ev)
	if s.errOn != "" && ev.Sender() == s.errOn {
		return errors.New("event failed")
	}
	return nil
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const webhookBody = `{"destination":"x","events":[
	{"type":"message","replyToken":"r1","source":{"type":"user","userId":"U1"},"message":{"id":"1","type":"text","text":"hello"}},
	{"type":"follow","replyToken":"r2","source":{"type":"user","userId":"U2"}},
	{"type":"message","replyToken":"r3","source":{"type":"user","userId":"U3"},"message":{"id":"3","type":"image"}}
]}`

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/callback",
		Headers:    map[string]string{"Content-Type": "application/json", "x-line-signature": sign(body)},
		Body:       body,
	}
}

func newTestHandler(t *testing.T, ev *stubEvents) *Handler {
	t.Helper()
	parser, err := line.NewWebhookParser(testSecret)
	require.NoError(t, err)
	h, err := NewHandler(parser, ev, nil)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	parser, err := line.NewWebhookParser(testSecret)
	require.NoError(t, err)

	_, err = NewHandler(nil, &stubEvents{}, nil)
	require.Error(t, err)
	_, err = NewHandler(parser, nil, nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	ev := &stubEvents{}
	h := newTestHandler(t, ev)

	resp, err := h.Handle(context.Background(), makeEvent(webhookBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, []domain.Event{
		domain.TextEvent{UserID: "U1", ReplyToken: "r1", Text: "hello"},
		domain.ImageEvent{UserID: "U3", ReplyToken: "r3", MessageID: "3"},
	}, ev.seen)
}

func TestHandle_Base64Body(t *testing.T) {
	ev := &stubEvents{}
	h := newTestHandler(t, ev)

	req := makeEvent(webhookBody)
	req.Body = base64.StdEncoding.EncodeToString([]byte(webhookBody))
	req.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ev.seen, 2)
}

func TestHandle_SignatureFailures(t *testing.T) {
	ev := &stubEvents{}
	h := newTestHandler(t, ev)

	missing := makeEvent(webhookBody)
	delete(missing.Headers, "x-line-signature")
	resp, err := h.Handle(context.Background(), missing)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Missing x-line-signature header", resp.Body)

	forged := makeEvent(webhookBody)
	forged.Headers["x-line-signature"] = sign("other body")
	resp, err = h.Handle(context.Background(), forged)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Empty(t, ev.seen)
}

func TestHandle_MalformedBody(t *testing.T) {
	h := newTestHandler(t, &stubEvents{})
	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_EventFailureContinuesAndReturns500(t *testing.T) {
	ev := &stubEvents{errOn: "U1"}
	h := newTestHandler(t, ev)

	resp, err := h.Handle(context.Background(), makeEvent(webhookBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Error", resp.Body)
	require.Len(t, ev.seen, 2)
}

func TestHandle_RecoversPanic(t *testing.T) {
	h := newTestHandler(t, &stubEvents{panic: true})

	resp, err := h.Handle(context.Background(), makeEvent(webhookBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Error", resp.Body)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubEvents{})

	event := makeEvent(webhookBody)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestServeHTTP(t *testing.T) {
	ev := &stubEvents{}
	srv := httptest.NewServer(newTestHandler(t, ev))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(webhookBody))
	require.NoError(t, err)
	req.Header.Set("X-Line-Signature", sign(webhookBody))
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get("X-Correlation-Id"))
	require.Len(t, ev.seen, 2)

	get, err := srv.Client().Get(srv.URL + "/callback")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

// Package handler exposes the webhook endpoint as an API Gateway Lambda
// handler and as a plain net/http handler.
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/integrations/line"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

type EventParser interface {
	Parse(signature string, body []byte) ([]domain.Event, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

type Handler struct {
	parser EventParser
	events EventHandler
	logger *slog.Logger
}

func NewHandler(parser EventParser, eh EventHandler, logger *slog.Logger) (*Handler, error) {
	if parser == nil {
		return nil, errors.New("handler: parser must not be nil")
	}
	if eh == nil {
		return nil, errors.New("handler: event handler must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{parser: parser, events: eh, logger: logger}, nil
}

// Handle verifies and processes one webhook delivery. Events run in arrival
// order; a failed event does not stop the ones after it.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	logger := h.logger.With("correlation_id", correlationID)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while handling webhook", "panic", fmt.Sprint(r))
			resp, err = textResponse(http.StatusInternalServerError, "Error", correlationID), nil
		}
	}()

	signature := headerValue(req.Headers, line.SignatureHeader)
	if signature == "" {
		return textResponse(http.StatusBadRequest, "Missing x-line-signature header", correlationID), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			logger.WarnContext(ctx, "invalid base64 body", "err", err)
			return textResponse(http.StatusBadRequest, "Bad Request", correlationID), nil
		}
		body = decoded
	}

	evs, err := h.parser.Parse(signature, body)
	switch {
	case errors.Is(err, line.ErrMissingSignature):
		return textResponse(http.StatusBadRequest, "Missing x-line-signature header", correlationID), nil
	case errors.Is(err, line.ErrInvalidSignature):
		logger.WarnContext(ctx, "webhook signature rejected")
		return textResponse(http.StatusUnauthorized, "Invalid signature", correlationID), nil
	case err != nil:
		logger.WarnContext(ctx, "webhook decode failed", "err", err)
		return textResponse(http.StatusBadRequest, "Bad Request", correlationID), nil
	}

	failed := 0
	for _, ev := range evs {
		if err := h.events.HandleEvent(ctx, ev); err != nil {
			failed++
			logger.ErrorContext(ctx, "event failed", "user_id", ev.Sender(), "err", err)
		}
	}
	if failed > 0 {
		return textResponse(http.StatusInternalServerError, "Error", correlationID), nil
	}
	return textResponse(http.StatusOK, "", correlationID), nil
}

// ServeHTTP adapts Handle for the standalone server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	resp, _ := h.Handle(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(body),
	})

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func textResponse(status int, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "text/plain; charset=utf-8",
			correlationHeader: correlationID,
		},
		Body: body,
	}
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newCorrelationID = func() string {
	return uuid.NewString()
}

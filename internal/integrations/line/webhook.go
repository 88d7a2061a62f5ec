// Package line adapts the LINE Messaging API SDK to the bot's domain events
// and replies: webhook verification and decoding, replies, pushes and
// content download.
package line

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"selfintro-bot/internal/domain"
)

// SignatureHeader is the webhook header carrying the body signature.
const SignatureHeader = "x-line-signature"

var (
	ErrMissingSignature = errors.New("line: missing signature")
	ErrInvalidSignature = errors.New("line: invalid signature")
)

// WebhookParser verifies and decodes webhook deliveries.
type WebhookParser struct {
	secret string
}

// NewWebhookParser creates a parser bound to a channel secret.
func NewWebhookParser(channelSecret string) (*WebhookParser, error) {
	if strings.TrimSpace(channelSecret) == "" {
		return nil, errors.New("line: channel secret must not be empty")
	}
	return &WebhookParser{secret: channelSecret}, nil
}

// Parse verifies the signature and returns the text and image message
// events in delivery order. Other event kinds are dropped.
func (p *WebhookParser) Parse(signature string, body []byte) ([]domain.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrMissingSignature
	}

	req, err := http.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("line: build webhook request: %w", err)
	}
	req.Header.Set(SignatureHeader, strings.TrimSpace(signature))

	cb, err := webhook.ParseRequest(p.secret, req)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("line: decode webhook: %w", err)
	}

	events := make([]domain.Event, 0, len(cb.Events))
	for _, raw := range cb.Events {
		msg, ok := raw.(webhook.MessageEvent)
		if !ok {
			continue
		}
		userID := sourceUser(msg.Source)
		if userID == "" {
			continue
		}
		switch content := msg.Message.(type) {
		case webhook.TextMessageContent:
			events = append(events, domain.TextEvent{
				UserID:     userID,
				ReplyToken: msg.ReplyToken,
				Text:       content.Text,
			})
		case webhook.ImageMessageContent:
			events = append(events, domain.ImageEvent{
				UserID:     userID,
				ReplyToken: msg.ReplyToken,
				MessageID:  content.Id,
			})
		}
	}
	return events, nil
}

func sourceUser(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

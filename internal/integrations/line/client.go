package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"selfintro-bot/internal/domain"
)

// maxMessages is the platform limit per reply or push call.
const maxMessages = 5

// HTTPStatusError captures non-2xx responses from the Messaging API.
type HTTPStatusError struct {
	StatusCode int
	Op         string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("line: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type settings struct {
	apiBase    string
	dataBase   string
	httpClient *http.Client
}

type Option func(*settings)

// WithBaseURLs overrides the API and content hosts.
func WithBaseURLs(apiBase, dataBase string) Option {
	return func(s *settings) {
		s.apiBase = strings.TrimRight(apiBase, "/")
		s.dataBase = strings.TrimRight(dataBase, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *settings) {
		s.httpClient = httpClient
	}
}

// Client sends messages and fetches user content with a channel access token.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

// NewClient creates a Messaging API client.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("line: channel access token must not be empty")
	}
	s := settings{httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(&s)
	}

	apiOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(s.httpClient)}
	blobOpts := []messaging_api.MessagingApiBlobAPIOption{messaging_api.WithBlobHTTPClient(s.httpClient)}
	if s.apiBase != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(s.apiBase))
	}
	if s.dataBase != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(s.dataBase))
	}

	api, err := messaging_api.NewMessagingApiAPI(accessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("line: create messaging client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(accessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("line: create blob client: %w", err)
	}
	return &Client{api: api, blob: blob}, nil
}

// messaging returns a per-call copy bound to ctx; the SDK keeps the context
// on the client value.
func (c *Client) messaging(ctx context.Context) *messaging_api.MessagingApiAPI {
	api := *c.api
	return api.WithContext(ctx)
}

// Reply answers an event through its reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, replies []domain.Reply) error {
	if replyToken == "" {
		return errors.New("line: reply token is required")
	}
	msgs, err := encodeMessages(replies)
	if err != nil {
		return err
	}
	res, _, err := c.messaging(ctx).ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	})
	return wrapError("reply", res, err)
}

// Push sends messages to a user without a reply token.
func (c *Client) Push(ctx context.Context, userID string, replies []domain.Reply) error {
	if userID == "" {
		return errors.New("line: push target is required")
	}
	msgs, err := encodeMessages(replies)
	if err != nil {
		return err
	}
	res, _, err := c.messaging(ctx).PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: msgs,
	}, "")
	return wrapError("push", res, err)
}

// Content streams the binary content of a user message. The caller closes it.
func (c *Client) Content(ctx context.Context, messageID string) (io.ReadCloser, string, error) {
	if messageID == "" {
		return nil, "", errors.New("line: message id is required")
	}
	blob := *c.blob
	res, err := blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return nil, "", wrapError("content", res, err)
	}
	return res.Body, res.Header.Get("Content-Type"), nil
}

func wrapError(op string, res *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if res != nil && (res.StatusCode < 200 || res.StatusCode >= 300) {
		return &HTTPStatusError{StatusCode: res.StatusCode, Op: op, Body: err.Error()}
	}
	return fmt.Errorf("line: %s: %w", op, err)
}

func encodeMessages(replies []domain.Reply) ([]messaging_api.MessageInterface, error) {
	if len(replies) == 0 {
		return nil, errors.New("line: at least one message is required")
	}
	if len(replies) > maxMessages {
		return nil, fmt.Errorf("line: at most %d messages per call, got %d", maxMessages, len(replies))
	}
	out := make([]messaging_api.MessageInterface, 0, len(replies))
	for _, r := range replies {
		switch r.Kind {
		case domain.ReplyText:
			out = append(out, &messaging_api.TextMessage{Text: r.Text})
		case domain.ReplyImage, domain.ReplyVideo:
			if r.OriginalURL == "" || r.PreviewURL == "" {
				return nil, fmt.Errorf("line: %s message requires content and preview URLs", r.Kind)
			}
			if r.Kind == domain.ReplyImage {
				out = append(out, &messaging_api.ImageMessage{OriginalContentUrl: r.OriginalURL, PreviewImageUrl: r.PreviewURL})
			} else {
				out = append(out, &messaging_api.VideoMessage{OriginalContentUrl: r.OriginalURL, PreviewImageUrl: r.PreviewURL})
			}
		default:
			return nil, fmt.Errorf("line: unsupported message kind %q", r.Kind)
		}
	}
	return out, nil
}

// Package did is a client for the D-ID talks API.
package did

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"selfintro-bot/internal/domain"
)

const defaultBaseURL = "https://api.d-id.com"

// TalkOptions are the fixed rendering settings sent with every talk.
type TalkOptions struct {
	ScriptType             string
	Subtitles              bool
	ProviderType           string
	SSML                   bool
	ResultFormat           string
	Stitch                 bool
	DetectFaces            bool
	Correct                bool
	DetectConfidence       float64
	FaceOccludedConfidence float64
	// Persist asks the provider to keep the result beyond its default lifetime.
	Persist bool
}

// DefaultTalkOptions returns the rendering settings used in production.
func DefaultTalkOptions() TalkOptions {
	return TalkOptions{
		ScriptType:             "text",
		Subtitles:              false,
		ProviderType:           "microsoft",
		SSML:                   true,
		ResultFormat:           "mp4",
		Stitch:                 true,
		DetectFaces:            true,
		Correct:                true,
		DetectConfidence:       0.5,
		FaceOccludedConfidence: 0.5,
		Persist:                false,
	}
}

type talkRequest struct {
	Script    talkScript `json:"script"`
	Config    talkConfig `json:"config"`
	SourceURL string     `json:"source_url"`
	Name      string     `json:"name"`
	Persist   bool       `json:"persist"`
}

type talkScript struct {
	Type      string       `json:"type"`
	Input     string       `json:"input"`
	Provider  talkProvider `json:"provider"`
	SSML      bool         `json:"ssml"`
	Subtitles bool         `json:"subtitles"`
}

type talkProvider struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id"`
}

type talkConfig struct {
	ResultFormat           string  `json:"result_format"`
	Stitch                 bool    `json:"stitch"`
	DetectFaces            bool    `json:"detect_faces"`
	Correct                bool    `json:"correct"`
	DetectConfidence       float64 `json:"detect_confidence"`
	FaceOccludedConfidence float64 `json:"face_occluded_confidence"`
}

type createResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ResultURL    string `json:"result_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// HTTPStatusError captures unexpected upstream statuses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("did: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client submits talks and reads their status.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	options    TalkOptions
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTalkOptions(o TalkOptions) Option {
	return func(c *Client) {
		c.options = o
	}
}

// NewClient creates a Client. apiKey is sent as HTTP Basic credentials.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("did: api key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		options:    DefaultTalkOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	return c, nil
}

func (c *Client) talksURL() string {
	return c.baseURL + "/talks"
}

func (c *Client) talkURL(id string) string {
	return c.talksURL() + "/" + url.PathEscape(id)
}

func (c *Client) buildRequest(in domain.TalkRequest) talkRequest {
	o := c.options
	return talkRequest{
		Script: talkScript{
			Type:      o.ScriptType,
			Input:     in.Script,
			Provider:  talkProvider{Type: o.ProviderType, VoiceID: in.VoiceID},
			SSML:      o.SSML,
			Subtitles: o.Subtitles,
		},
		Config: talkConfig{
			ResultFormat:           o.ResultFormat,
			Stitch:                 o.Stitch,
			DetectFaces:            o.DetectFaces,
			Correct:                o.Correct,
			DetectConfidence:       o.DetectConfidence,
			FaceOccludedConfidence: o.FaceOccludedConfidence,
		},
		SourceURL: in.SourceURL,
		Name:      in.Name,
		Persist:   o.Persist,
	}
}

// CreateTalk submits a talk and returns its id. Only 201 Created is success.
func (c *Client) CreateTalk(ctx context.Context, in domain.TalkRequest) (string, error) {
	body, err := json.Marshal(c.buildRequest(in))
	if err != nil {
		return "", fmt.Errorf("did: marshal talk: %w", err)
	}

	endpoint := c.talksURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("did: create request: %w", err)
	}

	raw, status, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("did: create talk: %w", err)
	}
	if status != http.StatusCreated {
		return "", &HTTPStatusError{StatusCode: status, URL: endpoint, Body: string(raw)}
	}

	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("did: decode create response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("did: create response missing id: %s", raw)
	}
	return out.ID, nil
}

// GetTalk reads the current state of a talk.
func (c *Client) GetTalk(ctx context.Context, id string) (domain.VideoJob, error) {
	if strings.TrimSpace(id) == "" {
		return domain.VideoJob{}, errors.New("did: talk id is required")
	}

	endpoint := c.talkURL(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.VideoJob{}, fmt.Errorf("did: create request: %w", err)
	}

	raw, status, err := c.do(req)
	if err != nil {
		return domain.VideoJob{}, fmt.Errorf("did: get talk: %w", err)
	}
	if status != http.StatusOK {
		return domain.VideoJob{}, &HTTPStatusError{StatusCode: status, URL: endpoint, Body: string(raw)}
	}

	var out statusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.VideoJob{}, fmt.Errorf("did: decode talk status: %w", err)
	}
	jobID := out.ID
	if jobID == "" {
		jobID = id
	}
	return domain.VideoJob{
		ID:           jobID,
		Status:       out.Status,
		ResultURL:    out.ResultURL,
		ThumbnailURL: out.ThumbnailURL,
		Raw:          string(raw),
	}, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return buf, res.StatusCode, nil
}

// Download streams a finished result into dst. Result URLs are pre-signed,
// so no credentials are sent.
func (c *Client) Download(ctx context.Context, resultURL string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return fmt.Errorf("did: create download request: %w", err)
	}
	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("did: download: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: resultURL, Body: string(body)}
	}
	if _, err := io.Copy(dst, res.Body); err != nil {
		return fmt.Errorf("did: download copy: %w", err)
	}
	return nil
}

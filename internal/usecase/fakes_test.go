package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"selfintro-bot/internal/avatar"
	"selfintro-bot/internal/domain"
)

type fakeLLM struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	messages [][]domain.ChatMessage
}

func (f *fakeLLM) Chat(_ context.Context, _ string, messages []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, messages)
	return f.answer, f.err
}

type fakeTalks struct {
	mu          sync.Mutex
	createID    string
	createErr   error
	jobs        []domain.VideoJob
	getErr      error
	gets        int
	created     []domain.TalkRequest
	download    string
	downloadErr error
}

func (f *fakeTalks) CreateTalk(_ context.Context, in domain.TalkRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return f.createID, f.createErr
}

func (f *fakeTalks) GetTalk(_ context.Context, id string) (domain.VideoJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return domain.VideoJob{}, f.getErr
	}
	if len(f.jobs) == 0 {
		return domain.VideoJob{ID: id, Status: "started"}, nil
	}
	idx := f.gets - 1
	if idx >= len(f.jobs) {
		idx = len(f.jobs) - 1
	}
	job := f.jobs[idx]
	job.ID = id
	return job, nil
}

func (f *fakeTalks) Download(_ context.Context, _ string, dst io.Writer) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	_, err := io.WriteString(dst, f.download)
	return err
}

type fakeObjects struct {
	mu         sync.Mutex
	presignErr error
	emptyURL   bool
	uploads    map[string][]byte
	presigned  []string
	uploadErr  error
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	f.presigned = append(f.presigned, key)
	if f.emptyURL {
		return "", nil
	}
	return "https://bucket.example/" + key + "?sig=1", nil
}

func (f *fakeObjects) Upload(_ context.Context, path, key string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return nil
}

type sentReplies struct {
	target  string
	replies []domain.Reply
}

type fakeMessenger struct {
	mu          sync.Mutex
	replies     []sentReplies
	pushes      []sentReplies
	content     []byte
	contentType string
	contentErr  error
	replyErr    error
	pushErr     error
}

func (f *fakeMessenger) Reply(_ context.Context, token string, replies []domain.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReplies{target: token, replies: replies})
	return f.replyErr
}

func (f *fakeMessenger) Push(_ context.Context, userID string, replies []domain.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, sentReplies{target: userID, replies: replies})
	return f.pushErr
}

func (f *fakeMessenger) Content(_ context.Context, _ string) (io.ReadCloser, string, error) {
	if f.contentErr != nil {
		return nil, "", f.contentErr
	}
	return io.NopCloser(bytes.NewReader(f.content)), f.contentType, nil
}

func (f *fakeMessenger) lastReply(t *testing.T) sentReplies {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.replies)
	return f.replies[len(f.replies)-1]
}

func (f *fakeMessenger) lastPush(t *testing.T) sentReplies {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.pushes)
	return f.pushes[len(f.pushes)-1]
}

func (f *fakeMessenger) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeMessenger) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func doneJob() domain.VideoJob {
	return domain.VideoJob{Status: domain.JobStatusDone, ResultURL: "https://cdn.example/result.mp4", ThumbnailURL: "https://cdn.example/thumb.jpg"}
}

type testRig struct {
	llm     *fakeLLM
	talks   *fakeTalks
	objects *fakeObjects
	video   *VideoSynthesizer
	text    *TextGenerator
	pipe    *Pipeline
	sleeps  int
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	r := &testRig{
		llm:     &fakeLLM{answer: "こんにちは、太郎です。"},
		talks:   &fakeTalks{createID: "tlk_1", jobs: []domain.VideoJob{doneJob()}},
		objects: &fakeObjects{},
	}
	catalog, err := avatar.Default()
	require.NoError(t, err)

	r.text, err = NewTextGenerator(r.llm, "test-model", nil)
	require.NoError(t, err)
	r.video, err = NewVideoSynthesizer(r.talks, r.objects, catalog, VideoOptions{
		PollInterval: time.Millisecond,
		TempDir:      t.TempDir(),
	}, nil, nil)
	require.NoError(t, err)
	r.video.sleep = func(context.Context, time.Duration) error {
		r.sleeps++
		return nil
	}
	r.pipe, err = NewPipeline(r.text, r.video, nil, nil)
	require.NoError(t, err)
	return r
}

var errBoom = errors.New("boom")

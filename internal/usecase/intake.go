package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/metrics"
	"selfintro-bot/internal/repository"
)

const defaultJobTimeout = 10 * time.Minute

// Intake modes.
const (
	ModeSteps      = "steps"
	ModeStructured = "structured"
)

type SessionStore interface {
	Load(ctx context.Context, userID string) (domain.Session, error)
	Save(ctx context.Context, sess domain.Session) (domain.Session, error)
	Delete(ctx context.Context, userID string) error
}

type Messenger interface {
	Reply(ctx context.Context, replyToken string, replies []domain.Reply) error
	Push(ctx context.Context, userID string, replies []domain.Reply) error
	Content(ctx context.Context, messageID string) (io.ReadCloser, string, error)
}

type IntakeDeps struct {
	Store      SessionStore
	Messenger  Messenger
	Uploads    ObjectStore
	Pipeline   *Pipeline
	Dispatcher *Dispatcher
}

type IntakeConfig struct {
	Mode string
	// Async runs the pipeline in a tracked goroutine instead of inside
	// HandleEvent. Either way the result is pushed.
	Async      bool
	JobTimeout time.Duration
	TempDir    string
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// IntakeService runs the conversation for each inbound event.
type IntakeService struct {
	store      SessionStore
	messenger  Messenger
	uploads    ObjectStore
	pipeline   *Pipeline
	dispatcher *Dispatcher
	cfg        IntakeConfig
	logger     *slog.Logger
	metrics    *metrics.Recorder

	locks    keyedMutex
	inflight sync.WaitGroup
}

func NewIntakeService(deps IntakeDeps, cfg IntakeConfig) (*IntakeService, error) {
	if deps.Messenger == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("usecase: pipeline must not be nil")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeSteps
	case ModeSteps, ModeStructured:
	default:
		return nil, fmt.Errorf("usecase: unknown intake mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeSteps {
		if deps.Store == nil {
			return nil, errors.New("usecase: session store must not be nil")
		}
		if deps.Uploads == nil {
			return nil, errors.New("usecase: upload store must not be nil")
		}
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{
		store:      deps.Store,
		messenger:  deps.Messenger,
		uploads:    deps.Uploads,
		pipeline:   deps.Pipeline,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// HandleEvent processes one inbound event. Conversation failures are
// answered in chat; the returned error reports infrastructure failures.
func (s *IntakeService) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch ev := ev.(type) {
	case domain.TextEvent:
		if s.cfg.Mode == ModeStructured {
			return s.handleStructured(ctx, ev)
		}
		return s.handleText(ctx, ev)
	case domain.ImageEvent:
		if s.cfg.Mode == ModeStructured {
			s.metrics.ObserveEvent("image", "ignored")
			return nil
		}
		return s.handleImage(ctx, ev)
	default:
		return fmt.Errorf("usecase: unsupported event %T", ev)
	}
}

// Wait blocks until every asynchronous pipeline run has delivered.
func (s *IntakeService) Wait() {
	s.inflight.Wait()
}

func (s *IntakeService) handleStructured(ctx context.Context, ev domain.TextEvent) error {
	answers, err := ParseStructured(ev.Text)
	if err != nil {
		s.metrics.ObserveEvent("text", "parse_failure")
		return s.reply(ctx, ev.Token(), s.dispatcher.Failure(err))
	}
	s.metrics.ObserveEvent("text", "ready")
	return s.deliver(ctx, ev.Sender(), ev.Token(), requestFromStructured(ev.Sender(), answers))
}

func (s *IntakeService) handleText(ctx context.Context, ev domain.TextEvent) error {
	unlock := s.locks.Lock(ev.Sender())
	defer unlock()

	sess, err := s.store.Load(ctx, ev.Sender())
	if err != nil {
		return s.fail(ctx, ev.Token(), "text", newError(ErrorInternal, "session_load_error", err))
	}

	tr := advance(sess, ev.Text, s.dispatcher)
	if !tr.ready {
		if _, err := s.store.Save(ctx, tr.session); err != nil {
			return s.saveFailed(ctx, ev.Token(), "text", err)
		}
		s.metrics.ObserveEvent("text", "handled")
		return s.reply(ctx, ev.Token(), tr.replies)
	}

	req, err := s.complete(ctx, tr.session)
	if err != nil {
		return s.saveFailed(ctx, ev.Token(), "text", err)
	}
	unlock()

	s.metrics.ObserveEvent("text", "ready")
	return s.deliver(ctx, ev.Sender(), ev.Token(), req)
}

func (s *IntakeService) handleImage(ctx context.Context, ev domain.ImageEvent) error {
	unlock := s.locks.Lock(ev.Sender())
	defer unlock()

	sess, err := s.store.Load(ctx, ev.Sender())
	if err != nil {
		return s.fail(ctx, ev.Token(), "image", newError(ErrorInternal, "session_load_error", err))
	}
	if !acceptsImage(sess) {
		s.metrics.ObserveEvent("image", "ignored")
		return nil
	}

	key, err := s.storeImage(ctx, ev)
	if err != nil {
		return s.fail(ctx, ev.Token(), "image", newError(ErrorInternal, "image_upload_error", err))
	}

	req, err := s.complete(ctx, attachImage(sess, key))
	if err != nil {
		return s.saveFailed(ctx, ev.Token(), "image", err)
	}
	unlock()

	s.metrics.ObserveEvent("image", "ready")
	return s.deliver(ctx, ev.Sender(), ev.Token(), req)
}

// complete claims a ready session with a versioned write, then resets it.
// Only one writer can win the claim, so the pipeline runs once per intake.
func (s *IntakeService) complete(ctx context.Context, sess domain.Session) (domain.IntakeRequest, error) {
	if _, err := s.store.Save(ctx, sess); err != nil {
		return domain.IntakeRequest{}, err
	}
	if err := s.store.Delete(ctx, sess.UserID); err != nil {
		return domain.IntakeRequest{}, err
	}
	return requestFromSession(sess), nil
}

// storeImage copies the image content to object storage and returns its key.
func (s *IntakeService) storeImage(ctx context.Context, ev domain.ImageEvent) (string, error) {
	body, contentType, err := s.messenger.Content(ctx, ev.MessageID)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	dir, err := os.MkdirTemp(s.cfg.TempDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("usecase: upload temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	name := newUUID() + imageExt(contentType)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("usecase: upload create: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("usecase: upload copy: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("usecase: upload close: %w", err)
	}

	key := "uploads/" + ev.Sender() + "/" + name
	if err := s.uploads.Upload(ctx, path, key); err != nil {
		return "", err
	}
	return key, nil
}

// deliver acknowledges on the reply token and pushes the result, which can
// arrive long after the token is usable.
func (s *IntakeService) deliver(ctx context.Context, userID, replyToken string, req domain.IntakeRequest) error {
	if err := s.reply(ctx, replyToken, []domain.Reply{s.dispatcher.Accepted()}); err != nil {
		s.logger.WarnContext(ctx, "acknowledgement failed", "user_id", userID, "err", err)
	}
	if !s.cfg.Async {
		return s.runAndPush(ctx, userID, req)
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		jobCtx := context.WithoutCancel(ctx)
		if err := s.runAndPush(jobCtx, userID, req); err != nil {
			s.logger.ErrorContext(jobCtx, "push result failed", "user_id", userID, "err", err)
		}
	}()
	return nil
}

func (s *IntakeService) runAndPush(ctx context.Context, userID string, req domain.IntakeRequest) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	res, err := s.pipeline.Run(jobCtx, req)
	cancel()

	if err := s.messenger.Push(ctx, userID, s.dispatcher.Result(res, err)); err != nil {
		return fmt.Errorf("usecase: push result: %w", err)
	}
	return nil
}

func (s *IntakeService) saveFailed(ctx context.Context, replyToken, kind string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		s.metrics.ObserveEvent(kind, "conflict")
		s.logger.WarnContext(ctx, "session write conflict", "code", ErrorSessionConflict)
		return s.reply(ctx, replyToken, s.dispatcher.Failure(newError(ErrorSessionConflict, "stale_version", err)))
	}
	return s.fail(ctx, replyToken, kind, newError(ErrorInternal, "session_save_error", err))
}

// fail sends a best-effort apology and returns err.
func (s *IntakeService) fail(ctx context.Context, replyToken, kind string, err *Error) error {
	s.metrics.ObserveEvent(kind, "failed")
	s.logger.ErrorContext(ctx, "event handling failed", "code", err.Code, "reason", err.Reason, "err", err.Err)
	if rerr := s.reply(ctx, replyToken, s.dispatcher.Failure(err)); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func (s *IntakeService) reply(ctx context.Context, replyToken string, replies []domain.Reply) error {
	if len(replies) == 0 || strings.TrimSpace(replyToken) == "" {
		return nil
	}
	if err := s.messenger.Reply(ctx, replyToken, replies); err != nil {
		return fmt.Errorf("usecase: reply: %w", err)
	}
	return nil
}

func imageExt(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}

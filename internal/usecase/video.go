package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/metrics"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultPollMaxAttempts = 60
	defaultPresignTTL      = time.Hour
	defaultVoiceID         = "ja-JP-NanamiNeural"
)

type TalkClient interface {
	CreateTalk(ctx context.Context, in domain.TalkRequest) (string, error)
	GetTalk(ctx context.Context, id string) (domain.VideoJob, error)
	Download(ctx context.Context, resultURL string, dst io.Writer) error
}

type ObjectStore interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, path, key string) error
}

type AvatarCatalog interface {
	Lookup(token string) (domain.AvatarProfile, bool)
}

type VideoOptions struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	PresignTTL      time.Duration
	// DefaultVoiceID voices uploaded profile images.
	DefaultVoiceID string
	// Mirror copies finished videos into object storage.
	Mirror  bool
	TempDir string
}

type VideoSynthesizer struct {
	talks   TalkClient
	store   ObjectStore
	avatars AvatarCatalog
	opts    VideoOptions
	logger  *slog.Logger
	metrics *metrics.Recorder

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewVideoSynthesizer(talks TalkClient, store ObjectStore, avatars AvatarCatalog, opts VideoOptions, logger *slog.Logger, rec *metrics.Recorder) (*VideoSynthesizer, error) {
	if talks == nil {
		return nil, errors.New("usecase: talk client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: object store must not be nil")
	}
	if avatars == nil {
		return nil, errors.New("usecase: avatar catalog must not be nil")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollMaxAttempts <= 0 {
		opts.PollMaxAttempts = defaultPollMaxAttempts
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = defaultPresignTTL
	}
	if opts.DefaultVoiceID == "" {
		opts.DefaultVoiceID = defaultVoiceID
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoSynthesizer{
		talks:   talks,
		store:   store,
		avatars: avatars,
		opts:    opts,
		logger:  logger,
		metrics: rec,
		sleep:   sleepContext,
		now:     time.Now,
	}, nil
}

// Resolve maps a selection to the stored image and voice to use.
func (v *VideoSynthesizer) Resolve(sel domain.AvatarSelection) (domain.AvatarProfile, error) {
	if sel.IsUpload() {
		return domain.AvatarProfile{ImageKey: sel.ImageKey, VoiceID: v.opts.DefaultVoiceID}, nil
	}
	profile, ok := v.avatars.Lookup(sel.Token)
	if !ok {
		return domain.AvatarProfile{}, newError(ErrorUnknownAvatarType, "unknown_token:"+sel.Token, nil)
	}
	return profile, nil
}

// Synthesize submits script for the resolved avatar and waits for the video.
func (v *VideoSynthesizer) Synthesize(ctx context.Context, script string, profile domain.AvatarProfile) (domain.VideoResult, error) {
	sourceURL, err := v.store.PresignGet(ctx, profile.ImageKey, v.opts.PresignTTL)
	if err != nil {
		return domain.VideoResult{}, newError(ErrorSourceAssetUnavailable, "presign_error", err)
	}
	if sourceURL == "" {
		return domain.VideoResult{}, newError(ErrorSourceAssetUnavailable, "presign_empty", nil)
	}

	jobID, err := v.talks.CreateTalk(ctx, domain.TalkRequest{
		Script:    script,
		VoiceID:   profile.VoiceID,
		SourceURL: sourceURL,
		Name:      "selfintro-" + newUUID(),
	})
	if err != nil {
		v.logger.ErrorContext(ctx, "video job submission failed", "err", err)
		return domain.VideoResult{}, newError(ErrorJobSubmission, "create_talk_error", err)
	}
	v.logger.InfoContext(ctx, "video job submitted", "job_id", jobID)

	job, err := v.poll(ctx, jobID)
	if err != nil {
		return domain.VideoResult{}, err
	}

	videoURL := job.ResultURL
	if v.opts.Mirror {
		mirrored, err := v.mirror(ctx, job)
		if err != nil {
			v.logger.WarnContext(ctx, "video mirror failed, serving provider url", "job_id", job.ID, "err", err)
		} else {
			videoURL = mirrored
		}
	}

	preview := job.ThumbnailURL
	if preview == "" {
		preview = sourceURL
	}
	return domain.VideoResult{
		Introduction: script,
		VideoURL:     videoURL,
		PreviewURL:   preview,
		JobID:        job.ID,
	}, nil
}

// poll reads the job until it is terminal. It stops after the first terminal
// status and never sleeps after the last allowed attempt.
func (v *VideoSynthesizer) poll(ctx context.Context, jobID string) (domain.VideoJob, error) {
	started := v.now()
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return domain.VideoJob{}, newError(ErrorPollTimeout, "deadline_exceeded", ctx.Err())
		}
		job, err := v.talks.GetTalk(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.VideoJob{}, newError(ErrorPollTimeout, "deadline_exceeded", err)
			}
			v.logger.ErrorContext(ctx, "video status poll failed", "job_id", jobID, "attempt", attempt, "err", err)
			return domain.VideoJob{}, newError(ErrorSynthesis, "status_error", err)
		}

		if job.Terminal() {
			v.metrics.ObserveVideoJob(attempt, v.now().Sub(started))
			if job.Status != domain.JobStatusDone {
				v.logger.ErrorContext(ctx, "video job failed", "job_id", jobID, "status", job.Status, "payload", job.Raw)
				return domain.VideoJob{}, newError(ErrorSynthesis, "job_"+job.Status, errors.New(job.Raw))
			}
			if job.ResultURL == "" {
				return domain.VideoJob{}, newError(ErrorMissingResultURL, "done_without_url", nil)
			}
			return job, nil
		}

		if attempt >= v.opts.PollMaxAttempts {
			return domain.VideoJob{}, newError(ErrorPollTimeout, fmt.Sprintf("max_attempts:%d", attempt), nil)
		}
		if err := v.sleep(ctx, v.opts.PollInterval); err != nil {
			return domain.VideoJob{}, newError(ErrorPollTimeout, "deadline_exceeded", err)
		}
	}
}

func (v *VideoSynthesizer) mirror(ctx context.Context, job domain.VideoJob) (string, error) {
	dir, err := os.MkdirTemp(v.opts.TempDir, "video-*")
	if err != nil {
		return "", fmt.Errorf("usecase: mirror temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	name := job.ID + ".mp4"
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("usecase: mirror create: %w", err)
	}
	if err := v.talks.Download(ctx, job.ResultURL, f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("usecase: mirror close: %w", err)
	}

	key := "movies/" + name
	if err := v.store.Upload(ctx, path, key); err != nil {
		return "", err
	}
	return v.store.PresignGet(ctx, key, v.opts.PresignTTL)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var newUUID = func() string {
	return uuid.NewString()
}

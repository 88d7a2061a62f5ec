package usecase

import (
	"context"
	"errors"
	"log/slog"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/metrics"
)

// Pipeline turns a completed intake into a video.
type Pipeline struct {
	text    *TextGenerator
	video   *VideoSynthesizer
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func NewPipeline(text *TextGenerator, video *VideoSynthesizer, logger *slog.Logger, rec *metrics.Recorder) (*Pipeline, error) {
	if text == nil {
		return nil, errors.New("usecase: text generator must not be nil")
	}
	if video == nil {
		return nil, errors.New("usecase: video synthesizer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{text: text, video: video, logger: logger, metrics: rec}, nil
}

// Run resolves the avatar before any network call, then generates the
// script and the video.
func (p *Pipeline) Run(ctx context.Context, req domain.IntakeRequest) (domain.VideoResult, error) {
	res, err := p.run(ctx, req)
	if err != nil {
		code := CodeOf(err)
		p.metrics.ObservePipeline(string(code))
		p.logger.WarnContext(ctx, "pipeline failed", "user_id", req.UserID, "code", code, "err", err)
		return domain.VideoResult{}, err
	}
	p.metrics.ObservePipeline("success")
	p.logger.InfoContext(ctx, "pipeline finished", "user_id", req.UserID, "job_id", res.JobID)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req domain.IntakeRequest) (domain.VideoResult, error) {
	profile, err := p.video.Resolve(req.Avatar)
	if err != nil {
		return domain.VideoResult{}, err
	}
	script, err := p.text.Generate(ctx, req)
	if err != nil {
		return domain.VideoResult{}, err
	}
	return p.video.Synthesize(ctx, script, profile)
}

// Package app wires configuration, AWS clients, integrations and use cases
// into a ready webhook handler. Both entrypoints share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"selfintro-bot/handler"
	"selfintro-bot/internal/avatar"
	"selfintro-bot/internal/config"
	"selfintro-bot/internal/integrations/did"
	"selfintro-bot/internal/integrations/line"
	"selfintro-bot/internal/integrations/openai"
	"selfintro-bot/internal/integrations/paramstore"
	"selfintro-bot/internal/integrations/storage"
	"selfintro-bot/internal/metrics"
	"selfintro-bot/internal/repository"
	"selfintro-bot/internal/usecase"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Handler  *handler.Handler
	Intake   *usecase.IntakeService
	Registry *prometheus.Registry
	// Sweeper is nil when no session store is used or the backend expires
	// records on its own.
	Sweeper Sweeper

	closers []io.Closer
}

// NewLogger builds the JSON logger used by every entrypoint.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// New resolves secrets and builds the full object graph.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	var tokens config.TokenGetter
	if cfg.NeedsParameterStore() {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
		tokens = ps
	}
	if err := cfg.ResolveSecrets(ctx, tokens); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewRecorder(a.Registry)

	var store usecase.SessionStore
	if cfg.UsesSessionStore() {
		store, err = a.openSessionStore(awsCfg)
		if err != nil {
			return nil, err
		}
	}

	s3Client := awss3.NewFromConfig(awsCfg)
	objects, err := storage.New(s3Client, awss3.NewPresignClient(s3Client), cfg.BucketName)
	if err != nil {
		return nil, err
	}

	catalog, err := avatar.Load(cfg.AvatarCatalogPath)
	if err != nil {
		return nil, err
	}

	var openaiOpts []openai.Option
	if cfg.OpenAIBaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.NewClient(cfg.OpenAIAPIKey, openaiOpts...)
	if err != nil {
		return nil, err
	}

	var didOpts []did.Option
	if cfg.DIDBaseURL != "" {
		didOpts = append(didOpts, did.WithBaseURL(cfg.DIDBaseURL))
	}
	talks, err := did.NewClient(cfg.DIDAPIKey, didOpts...)
	if err != nil {
		return nil, err
	}

	messenger, err := line.NewClient(cfg.LineChannelAccessToken)
	if err != nil {
		return nil, err
	}
	parser, err := line.NewWebhookParser(cfg.LineChannelSecret)
	if err != nil {
		return nil, err
	}

	text, err := usecase.NewTextGenerator(llm, cfg.OpenAIModel, logger)
	if err != nil {
		return nil, err
	}
	video, err := usecase.NewVideoSynthesizer(talks, objects, catalog, usecase.VideoOptions{
		PollInterval:    cfg.VideoPollInterval,
		PollMaxAttempts: cfg.VideoPollMaxAttempts,
		PresignTTL:      cfg.PresignTTL,
		DefaultVoiceID:  cfg.DefaultVoiceID,
		Mirror:          cfg.MirrorVideos,
		TempDir:         cfg.TempDir,
	}, logger, rec)
	if err != nil {
		return nil, err
	}
	pipeline, err := usecase.NewPipeline(text, video, logger, rec)
	if err != nil {
		return nil, err
	}

	a.Intake, err = usecase.NewIntakeService(usecase.IntakeDeps{
		Store:      store,
		Messenger:  messenger,
		Uploads:    objects,
		Pipeline:   pipeline,
		Dispatcher: usecase.NewDispatcher(catalog.Tokens()),
	}, usecase.IntakeConfig{
		Mode:       cfg.IntakeMode,
		Async:      cfg.AsyncDelivery,
		JobTimeout: cfg.JobTimeout,
		TempDir:    cfg.TempDir,
		Logger:     logger,
		Metrics:    rec,
	})
	if err != nil {
		return nil, err
	}

	a.Handler, err = handler.NewHandler(parser, a.Intake, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openSessionStore(awsCfg aws.Config) (usecase.SessionStore, error) {
	cfg := a.Config
	switch cfg.SessionBackend {
	case "dynamodb":
		return repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionTTL)
	case "sqlite":
		s, err := repository.OpenSQLite(cfg.SQLitePath, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		a.Sweeper = s
		return s, nil
	case "memory":
		m := repository.NewMemory(cfg.SessionTTL)
		a.Sweeper = m
		return m, nil
	}
	return nil, fmt.Errorf("app: unknown session backend %q", cfg.SessionBackend)
}

// Close waits for in-flight deliveries and releases local resources.
func (a *App) Close() error {
	if a.Intake != nil {
		a.Intake.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Fatal logs err and exits. MissingError is reported with the missing keys.
func Fatal(logger *slog.Logger, msg string, err error) {
	var missing *config.MissingError
	if errors.As(err, &missing) {
		logger.Error(msg, "missing", missing.Keys, "err", err)
	} else {
		logger.Error(msg, "err", err)
	}
	os.Exit(1)
}

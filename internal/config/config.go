// Package config loads runtime settings from the environment and resolves
// secrets from SSM Parameter Store when they are not set directly.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Secrets
	LineChannelSecret      string `env:"LINE_CHANNEL_SECRET"`
	LineChannelAccessToken string `env:"LINE_CHANNEL_ACCESS_TOKEN"`
	DIDAPIKey              string `env:"DID_API_KEY"`
	OpenAIAPIKey           string `env:"OPENAI_API_KEY"`
	ParamPrefix            string `env:"PARAM_PREFIX"`

	// Upstreams
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	DIDBaseURL    string `env:"DID_BASE_URL"`

	// Storage
	BucketName        string        `env:"BUCKET_NAME" envDefault:"selfintro-bot-bucket"`
	PresignTTL        time.Duration `env:"PRESIGN_TTL" envDefault:"1h"`
	AvatarCatalogPath string        `env:"AVATAR_CATALOG_PATH"`
	TempDir           string        `env:"TEMP_DIR" envDefault:"/tmp"`

	// Sessions
	IntakeMode           string        `env:"INTAKE_MODE" envDefault:"steps"`
	SessionBackend       string        `env:"SESSION_BACKEND" envDefault:"dynamodb"`
	SessionTable         string        `env:"SESSION_TABLE"`
	SQLitePath           string        `env:"SQLITE_PATH" envDefault:"data/sessions.db"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionSweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@every 10m"`

	// Video
	VideoPollInterval    time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"5s"`
	VideoPollMaxAttempts int           `env:"VIDEO_POLL_MAX_ATTEMPTS" envDefault:"60"`
	MirrorVideos         bool          `env:"MIRROR_VIDEOS" envDefault:"false"`
	DefaultVoiceID       string        `env:"DEFAULT_VOICE_ID" envDefault:"ja-JP-NanamiNeural"`

	// Delivery
	AsyncDelivery bool          `env:"ASYNC_DELIVERY" envDefault:"false"`
	JobTimeout    time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`
	ListenAddr    string        `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

// MissingError lists required settings that could not be resolved.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "config: missing required settings: " + strings.Join(e.Keys, ", ")
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	return cfg, nil
}

type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

type secretRef struct {
	envKey string
	param  string
	dst    *string
}

func (c *Config) secrets() []secretRef {
	return []secretRef{
		{envKey: "LINE_CHANNEL_SECRET", param: "/line-channel-secret", dst: &c.LineChannelSecret},
		{envKey: "LINE_CHANNEL_ACCESS_TOKEN", param: "/line-channel-access-token", dst: &c.LineChannelAccessToken},
		{envKey: "DID_API_KEY", param: "/d-id-api-key", dst: &c.DIDAPIKey},
		{envKey: "OPENAI_API_KEY", param: "/open-ai-token", dst: &c.OpenAIAPIKey},
	}
}

// NeedsParameterStore reports whether ResolveSecrets would read SSM.
func (c *Config) NeedsParameterStore() bool {
	if c.ParamPrefix == "" {
		return false
	}
	for _, s := range c.secrets() {
		if strings.TrimSpace(*s.dst) == "" {
			return true
		}
	}
	return false
}

// ResolveSecrets fills secrets that are unset in the environment from
// "<PARAM_PREFIX>/<name>" parameters. tokens may be nil when no prefix is
// configured. Anything still missing yields a *MissingError.
func (c *Config) ResolveSecrets(ctx context.Context, tokens TokenGetter) error {
	var missing []string
	for _, s := range c.secrets() {
		if strings.TrimSpace(*s.dst) != "" {
			continue
		}
		if c.ParamPrefix != "" && tokens != nil {
			name := c.ParamPrefix + s.param
			v, err := tokens.GetToken(ctx, name)
			if err == nil {
				*s.dst = v
				continue
			}
			slog.WarnContext(ctx, "secret lookup failed", "param", name, "err", err)
		}
		missing = append(missing, s.envKey)
	}

	if c.UsesSessionStore() {
		switch c.SessionBackend {
		case "dynamodb":
			if strings.TrimSpace(c.SessionTable) == "" {
				missing = append(missing, "SESSION_TABLE")
			}
		case "sqlite", "memory":
		default:
			return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
		}
	}

	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// UsesSessionStore reports whether the intake mode keeps sessions between
// messages. Structured intake completes in a single message.
func (c *Config) UsesSessionStore() bool {
	return c.IntakeMode != "structured"
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"selfintro-bot/internal/domain"
)

const defaultModel = "gpt-4o-mini"

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// TextGenerator writes the introduction script. It issues exactly one
// completion request per call.
type TextGenerator struct {
	llm    LLMClient
	model  string
	logger *slog.Logger
}

func NewTextGenerator(llm LLMClient, model string, logger *slog.Logger) (*TextGenerator, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TextGenerator{llm: llm, model: model, logger: logger}, nil
}

func (g *TextGenerator) Generate(ctx context.Context, req domain.IntakeRequest) (string, error) {
	raw, err := g.llm.Chat(ctx, g.model, buildIntroMessages(req))
	if err != nil {
		attrs := []any{"user_id", req.UserID, "err", err}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "status", status)
		}
		g.logger.ErrorContext(ctx, "text generation failed", attrs...)
		return "", newError(ErrorUpstreamGeneration, "openai_error", err)
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", newError(ErrorUpstreamGeneration, "openai_empty_response", nil)
	}
	return text, nil
}

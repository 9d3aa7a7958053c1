package vision

import (
	"context"
	"errors"

	"github.com/hearthkeep/hearth/internal/identify/vision/anthropic"
	"github.com/hearthkeep/hearth/internal/identify/vision/gemini"
	"github.com/hearthkeep/hearth/internal/identify/vision/models"
	"github.com/hearthkeep/hearth/internal/identify/vision/openai"
)

// Client is one configured AI provider. Identify returns raw candidates
// for a request; Generate is a plain text completion used for synthesis
// and manual-URL suggestions.
type Client interface {
	Identify(ctx context.Context, in models.Input) ([]models.Candidate, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

type Provider string

const (
	OpenAIProvider    Provider = "openai"
	AnthropicProvider Provider = "anthropic"
	GeminiProvider    Provider = "gemini"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

func New(provider Provider, cfg models.Config) (Client, error) {
	switch provider {
	case OpenAIProvider:
		return openai.New(cfg), nil
	case AnthropicProvider:
		return anthropic.New(cfg), nil
	case GeminiProvider:
		return gemini.New(cfg)
	default:
		return nil, ErrUnsupportedProvider
	}
}

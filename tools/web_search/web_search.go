package web_search

import (
	"context"
	"errors"
	"time"

	"github.com/hearthkeep/hearth/tools/web_search/brave"
	"github.com/hearthkeep/hearth/tools/web_search/models"
	"github.com/hearthkeep/hearth/tools/web_search/serper"
)

// WebSearcher runs one search query against a provider and returns up to
// k ranked results, optionally restricted to the given sites.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.New(apiKey, timeout), nil
	case BraveProvider:
		return brave.New(apiKey, timeout), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/hearthkeep/hearth/internal/identify/vision/models"
)

// Client talks to the Gemini API through the official genai SDK.
type Client struct {
	cfg    models.Config
	client *genai.Client
}

func New(cfg models.Config) (*Client, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{cfg: cfg, client: client}, nil
}

func (c *Client) Identify(ctx context.Context, in models.Input) ([]models.Candidate, error) {
	parts := []*genai.Part{{Text: in.IdentifyPrompt()}}
	if in.HasImage() {
		mime := in.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: in.Image}})
	}
	raw, err := c.generate(ctx, parts)
	if err != nil {
		return nil, err
	}
	return models.ParseCandidates(raw)
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []*genai.Part{{Text: prompt}})
}

func (c *Client) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	result, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hearthkeep/hearth/internal/identify/vision/models"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Client talks to Anthropic's messages API, with image input as a base64
// source block.
type Client struct {
	cfg  models.Config
	http *http.Client
}

func New(cfg models.Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string         `json:"role"`
		Content []contentBlock `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature,omitempty"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) Identify(ctx context.Context, in models.Input) ([]models.Candidate, error) {
	var blocks []contentBlock
	if in.HasImage() {
		mime := in.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		blocks = append(blocks, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: mime,
				Data:      base64.StdEncoding.EncodeToString(in.Image),
			},
		})
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: in.IdentifyPrompt()})

	raw, err := c.send(ctx, blocks)
	if err != nil {
		return nil, err
	}
	return models.ParseCandidates(raw)
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.send(ctx, []contentBlock{{Type: "text", Text: prompt}})
}

func (c *Client) send(ctx context.Context, blocks []contentBlock) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	reqBody := messageRequest{Model: c.cfg.Model, MaxTokens: maxTokens, Temperature: c.cfg.Temperature}
	reqBody.Messages = append(reqBody.Messages, struct {
		Role    string         `json:"role"`
		Content []contentBlock `json:"content"`
	}{Role: "user", Content: blocks})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic status %d", resp.StatusCode)
	}

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content")
}

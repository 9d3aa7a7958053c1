package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hearthkeep/hearth/utils"
)

// Input is one identification request as seen by a provider client.
// Image and Query may both be set; at least one is.
type Input struct {
	Image      []byte
	ImageMIME  string
	Query      string
	Categories []string
}

func (in Input) HasImage() bool { return len(in.Image) > 0 }
func (in Input) HasText() bool  { return strings.TrimSpace(in.Query) != "" }

// Candidate is one proposed product identification from a provider.
type Candidate struct {
	Make       string  `json:"make,omitempty"`
	Model      string  `json:"model,omitempty"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
	ImageURL   string  `json:"image_url,omitempty"`
}

// Config is a single provider client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// IdentifyPrompt builds the identification instruction shared by all
// provider clients. Vendors differ only in transport and image encoding.
func (in Input) IdentifyPrompt() string {
	var b strings.Builder
	b.WriteString(`You are a product identification assistant for a household inventory.
Identify the product (appliance, electronics, tool, fixture) as precisely as possible.
`)
	if in.HasText() {
		fmt.Fprintf(&b, "\nUSER DESCRIPTION: %q\n", in.Query)
	}
	if in.HasImage() {
		b.WriteString("\nAn image of the product is attached. Read any visible labels, model plates or logos.\n")
	}
	if len(in.Categories) > 0 {
		fmt.Fprintf(&b, "\nLIKELY CATEGORIES: %s\n", strings.Join(in.Categories, ", "))
	}
	b.WriteString(`
Respond ONLY with a strict JSON array, best guess first, up to 5 entries:
[{"make": string, "model": string, "type": string, "confidence": number 0..1}]
Use an empty array [] if nothing can be identified. Do not include any other text.`)
	return b.String()
}

// ParseCandidates extracts a candidate array from a loosely formatted
// provider response. A response with no parseable array is an error; an
// empty array is a valid, uninformative answer.
func ParseCandidates(raw string) ([]Candidate, error) {
	var out []Candidate
	if err := json.Unmarshal([]byte(utils.ExtractFirstJSONArray(raw)), &out); err != nil {
		return nil, fmt.Errorf("unparseable candidate response: %w", err)
	}
	for i := range out {
		out[i].Make = strings.TrimSpace(out[i].Make)
		out[i].Model = strings.TrimSpace(out[i].Model)
		out[i].Type = strings.TrimSpace(out[i].Type)
		if out[i].Confidence < 0 {
			out[i].Confidence = 0
		}
		if out[i].Confidence > 1 {
			out[i].Confidence = 1
		}
	}
	return out, nil
}

package identify

import (
	"strings"
	"time"

	"github.com/hearthkeep/hearth/internal/identify/vision"
	"github.com/hearthkeep/hearth/internal/identify/vision/models"
)

// Request is one identification request. Immutable once dispatched.
type Request struct {
	ID         string
	Image      []byte
	ImageMIME  string
	Query      string
	Categories []string
}

func (r Request) HasImage() bool { return len(r.Image) > 0 }
func (r Request) HasText() bool  { return strings.TrimSpace(r.Query) != "" }

func (r Request) input() models.Input {
	return models.Input{
		Image:      r.Image,
		ImageMIME:  r.ImageMIME,
		Query:      r.Query,
		Categories: r.Categories,
	}
}

// Agent is one enabled provider with its capabilities and per-call timeout.
type Agent struct {
	Name    string
	Image   bool
	Text    bool
	Timeout time.Duration
	Client  vision.Client
}

// CanHandle reports whether the agent's capabilities match the request.
// An image-only request needs an image-capable agent and vice versa; an
// agent declaring both handles anything.
func (a Agent) CanHandle(r Request) bool {
	if r.HasImage() && !r.HasText() {
		return a.Image
	}
	if r.HasText() && !r.HasImage() {
		return a.Text
	}
	return a.Image || a.Text
}

// Outcome is the terminal record of one agent call. Exactly one is
// produced per invoked agent per request; never mutated afterwards.
type Outcome struct {
	Agent      string             `json:"agent"`
	Success    bool               `json:"success"`
	Duration   time.Duration      `json:"duration"`
	Error      string             `json:"error,omitempty"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
}

// Candidate is a consolidated product identification, annotated with how
// many agents agreed and which agent proposed it.
type Candidate struct {
	Make         string  `json:"make,omitempty"`
	Model        string  `json:"model,omitempty"`
	Type         string  `json:"type,omitempty"`
	Confidence   float64 `json:"confidence"`
	ImageURL     string  `json:"image_url,omitempty"`
	AgentsAgreed int     `json:"agents_agreed"`
	SourceAgent  string  `json:"source_agent,omitempty"`
}

// ConsensusLevel buckets how strongly the responding agents agreed on the
// top-ranked candidate.
type ConsensusLevel string

const (
	ConsensusFull     ConsensusLevel = "full"
	ConsensusMajority ConsensusLevel = "majority"
	ConsensusPartial  ConsensusLevel = "partial"
	ConsensusLow      ConsensusLevel = "low"
	ConsensusSingle   ConsensusLevel = "single"
	ConsensusNone     ConsensusLevel = "none"
)

type Consensus struct {
	Level          ConsensusLevel `json:"level"`
	AgentsAgreeing int            `json:"agents_agreeing"`
	TotalAgents    int            `json:"total_agents"`
}

// Result is the consolidated outcome of one request, produced once after
// every agent has settled.
type Result struct {
	Candidates     []Candidate `json:"candidates"`
	Consensus      Consensus   `json:"consensus"`
	SynthesisAgent string      `json:"synthesis_agent,omitempty"`
	SynthesisError string      `json:"synthesis_error,omitempty"`
	ParseSource    string      `json:"parse_source"` // synthesized or raw
}

const (
	ParseSourceSynthesized = "synthesized"
	ParseSourceRaw         = "raw"
)

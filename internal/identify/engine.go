package identify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthkeep/hearth/config"
	"github.com/hearthkeep/hearth/internal/identify/vision"
	visionmodels "github.com/hearthkeep/hearth/internal/identify/vision/models"
	"github.com/hearthkeep/hearth/internal/telemetry"
)

// Engine fans one identification request out to every capable agent,
// publishes progress events as calls settle, and consolidates the raw
// answers into a single ranked result.
type Engine struct {
	agents           []Agent
	synthesisAgent   string
	synthesisTimeout time.Duration
	overallTimeout   time.Duration
	logger           *log.Logger
	telemetry        *telemetry.Telemetry
}

const overallTimeoutMargin = 10 * time.Second

// NewEngine builds the agent pool from configuration. Disabled agents are
// skipped; agent order is fixed alphabetically so the init event listing
// is stable across runs.
func NewEngine(cfg config.IdentifyConfig, tele *telemetry.Telemetry) (*Engine, error) {
	names := make([]string, 0, len(cfg.Agents))
	for name, ac := range cfg.Agents {
		if ac.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var agents []Agent
	for _, name := range names {
		ac := cfg.Agents[name]
		client, err := vision.New(vision.Provider(ac.Type), visionmodels.Config{
			APIKey:      ac.APIKey,
			BaseURL:     ac.BaseURL,
			Model:       ac.Model,
			Temperature: ac.Temperature,
			MaxTokens:   ac.MaxTokens,
			Timeout:     ac.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}
		timeout := ac.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		agents = append(agents, Agent{
			Name:    name,
			Image:   ac.Image,
			Text:    ac.Text,
			Timeout: timeout,
			Client:  client,
		})
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no enabled agents configured")
	}

	return &Engine{
		agents:           agents,
		synthesisAgent:   cfg.SynthesisAgent,
		synthesisTimeout: cfg.SynthesisTimeout,
		overallTimeout:   cfg.OverallTimeout,
		logger:           log.New(log.Writer(), "[IDENTIFY] ", log.LstdFlags),
		telemetry:        tele,
	}, nil
}

// AgentNames lists the configured agent identifiers in init order.
func (e *Engine) AgentNames() []string {
	names := make([]string, len(e.agents))
	for i, a := range e.agents {
		names[i] = a.Name
	}
	return names
}

// Client returns the provider client registered under name.
func (e *Engine) Client(name string) (vision.Client, bool) {
	for _, a := range e.agents {
		if a.Name == name {
			return a.Client, true
		}
	}
	return nil, false
}

// Identify runs the full pipeline for one request. The returned channel
// carries the ordered progress events and is closed after the terminal
// complete/error event. The run continues even if the consumer stops
// reading early, so readers must drain the channel.
func (e *Engine) Identify(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 16)
	go e.run(ctx, req, out)
	return out
}

func (e *Engine) run(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)
	start := time.Now()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	eligible := e.eligible(req)
	pub := newPublisher(out, len(eligible))

	if !req.HasImage() && !req.HasText() {
		pub.error("request needs an image or a text query")
		e.telemetry.RecordIdentify("rejected")
		return
	}
	if len(eligible) == 0 {
		pub.error("no enabled agents can handle this request")
		e.telemetry.RecordIdentify("no_agents")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.ceiling())
	defer cancel()

	names := make([]string, len(eligible))
	for i, a := range eligible {
		names[i] = a.Name
	}
	pub.init(names)
	e.logger.Printf("request %s: dispatching to %d agents (%s)", req.ID, len(eligible), strings.Join(names, ", "))

	outcomes := e.dispatch(ctx, req, eligible, pub)

	succeeded := 0
	for _, oc := range outcomes {
		if oc.Success {
			succeeded++
		}
	}
	if succeeded == 0 {
		pub.error(describeFailures(outcomes))
		e.telemetry.RecordIdentify("all_failed")
		e.logger.Printf("request %s: all %d agents failed", req.ID, len(outcomes))
		return
	}

	synthName := e.synthesisFor(outcomes)
	pub.synthesisStart(synthName)

	result := e.consolidate(ctx, outcomes)

	pub.complete(buildCompletePayload(result, outcomes, time.Since(start)))
	e.telemetry.RecordIdentify("complete")
	e.logger.Printf("request %s: %d candidates, consensus %s (%d/%d), source %s, took %v",
		req.ID, len(result.Candidates), result.Consensus.Level,
		result.Consensus.AgentsAgreeing, result.Consensus.TotalAgents, result.ParseSource, time.Since(start))
}

// eligible filters the pool by capability match against the request.
func (e *Engine) eligible(req Request) []Agent {
	var out []Agent
	for _, a := range e.agents {
		if a.CanHandle(req) {
			out = append(out, a)
		}
	}
	return out
}

// ceiling bounds one whole run: the slowest possible agent plus the
// synthesis step plus a margin, unless configured explicitly.
func (e *Engine) ceiling() time.Duration {
	if e.overallTimeout > 0 {
		return e.overallTimeout
	}
	var maxAgent time.Duration
	for _, a := range e.agents {
		if a.Timeout > maxAgent {
			maxAgent = a.Timeout
		}
	}
	return maxAgent + e.synthesisTimeout + overallTimeoutMargin
}

// dispatch invokes every eligible agent concurrently. Each call carries
// its own timeout; expiry or any provider failure becomes an error
// outcome for that agent alone. Outcomes are appended in arrival order.
func (e *Engine) dispatch(ctx context.Context, req Request, agents []Agent, pub *publisher) []Outcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
	)
	for _, agent := range agents {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()

			pub.agentStart(a.Name)
			start := time.Now()

			callCtx, cancel := context.WithTimeout(ctx, a.Timeout)
			candidates, err := invoke(callCtx, a.Client, req)
			cancel()

			oc := Outcome{Agent: a.Name, Duration: time.Since(start)}
			switch {
			case err == nil:
				oc.Success = true
				oc.Candidates = candidates
			case errors.Is(err, context.DeadlineExceeded):
				oc.Error = "timeout"
			default:
				oc.Error = err.Error()
			}

			mu.Lock()
			outcomes = append(outcomes, oc)
			mu.Unlock()

			e.telemetry.RecordAgentOutcome(a.Name, oc.Success, oc.Duration)
			if !oc.Success {
				e.logger.Printf("agent %s failed after %v: %s", a.Name, oc.Duration, oc.Error)
			}
			pub.agentComplete(oc)
		}(agent)
	}
	wg.Wait()
	return outcomes
}

// invoke shields the dispatcher from a misbehaving provider client: a
// panic is converted into an ordinary error outcome.
func invoke(ctx context.Context, client vision.Client, req Request) (candidates []visionmodels.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return client.Identify(ctx, req.input())
}

// synthesisFor resolves which agent will reconcile multi-agent answers.
// Empty when the deterministic merge will run instead.
func (e *Engine) synthesisFor(outcomes []Outcome) string {
	succeeded := 0
	for _, oc := range outcomes {
		if oc.Success {
			succeeded++
		}
	}
	if succeeded < 2 {
		return ""
	}
	if e.synthesisAgent != "" {
		if _, ok := e.Client(e.synthesisAgent); ok {
			return e.synthesisAgent
		}
	}
	return ""
}

func describeFailures(outcomes []Outcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, oc := range outcomes {
		parts = append(parts, fmt.Sprintf("%s: %s", oc.Agent, oc.Error))
	}
	return "all agents failed: " + strings.Join(parts, "; ")
}

func buildCompletePayload(result Result, outcomes []Outcome, total time.Duration) CompletePayload {
	payload := CompletePayload{
		Results:         result.Candidates,
		Consensus:       result.Consensus,
		SynthesisAgent:  result.SynthesisAgent,
		SynthesisError:  result.SynthesisError,
		TotalDurationMS: total.Milliseconds(),
		ParseSource:     result.ParseSource,
	}
	for _, oc := range outcomes {
		payload.AgentsUsed = append(payload.AgentsUsed, oc.Agent)
		payload.AgentDetails = append(payload.AgentDetails, AgentDetail{
			Agent:      oc.Agent,
			Success:    oc.Success,
			DurationMS: oc.Duration.Milliseconds(),
			Error:      oc.Error,
			Candidates: len(oc.Candidates),
		})
		if oc.Success {
			payload.AgentsSucceeded++
		} else {
			if payload.AgentErrors == nil {
				payload.AgentErrors = make(map[string]string)
			}
			payload.AgentErrors[oc.Agent] = oc.Error
		}
	}
	return payload
}

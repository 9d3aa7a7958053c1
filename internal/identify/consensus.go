package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hearthkeep/hearth/internal/identify/vision"
	visionmodels "github.com/hearthkeep/hearth/internal/identify/vision/models"
	"github.com/hearthkeep/hearth/utils"
)

// consolidate reconciles the settled outcomes into one ranked result.
// With a single successful agent its list is used directly; with several,
// a synthesis agent is asked to reconcile and the deterministic merge is
// the fallback when synthesis fails or times out.
func (e *Engine) consolidate(ctx context.Context, outcomes []Outcome) Result {
	succ := successes(outcomes)
	if len(succ) == 1 {
		return singleAgentResult(succ[0], len(outcomes))
	}

	name := e.synthesisFor(outcomes)
	if name == "" {
		return Merge(outcomes)
	}

	client, _ := e.Client(name)
	timeout := e.synthesisTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	candidates, err := synthesize(sctx, client, succ)
	cancel()
	if err != nil {
		e.telemetry.RecordSynthesisFallback()
		e.logger.Printf("synthesis via %s failed, using deterministic merge: %v", name, err)
		result := Merge(outcomes)
		result.SynthesisAgent = name
		result.SynthesisError = err.Error()
		return result
	}

	annotateAgreement(candidates, succ)
	result := Result{
		Candidates:     candidates,
		SynthesisAgent: name,
		ParseSource:    ParseSourceSynthesized,
	}
	result.Consensus = consensusOf(result.Candidates, len(outcomes), len(succ))
	return result
}

func successes(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, oc := range outcomes {
		if oc.Success {
			out = append(out, oc)
		}
	}
	return out
}

// singleAgentResult adopts the lone responder's list verbatim.
func singleAgentResult(oc Outcome, totalInvoked int) Result {
	var candidates []Candidate
	for _, rc := range oc.Candidates {
		if rc.Make == "" && rc.Model == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Make:         rc.Make,
			Model:        rc.Model,
			Type:         rc.Type,
			Confidence:   rc.Confidence,
			ImageURL:     rc.ImageURL,
			AgentsAgreed: 1,
			SourceAgent:  oc.Agent,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	result := Result{Candidates: candidates, ParseSource: ParseSourceRaw}
	result.Consensus = consensusOf(candidates, totalInvoked, 1)
	return result
}

// Merge is the deterministic consolidation of raw per-agent candidate
// lists: union deduplicated by normalized (make, model), agreement
// counted per distinct agent, ranked by confidence then agreement with
// first-seen order as the stable tie-break. Pure function of its input.
func Merge(outcomes []Outcome) Result {
	succ := successes(outcomes)

	var (
		merged []Candidate
		agents []map[string]bool
		keyed  = make(map[string]int)
	)
	for _, oc := range succ {
		for _, rc := range oc.Candidates {
			if rc.Make == "" && rc.Model == "" {
				continue
			}
			key := candidateKey(rc.Make, rc.Model)
			idx, ok := keyed[key]
			if !ok {
				merged = append(merged, Candidate{
					Make:         rc.Make,
					Model:        rc.Model,
					Type:         rc.Type,
					Confidence:   rc.Confidence,
					ImageURL:     rc.ImageURL,
					AgentsAgreed: 1,
					SourceAgent:  oc.Agent,
				})
				agents = append(agents, map[string]bool{oc.Agent: true})
				keyed[key] = len(merged) - 1
				continue
			}
			if !agents[idx][oc.Agent] {
				agents[idx][oc.Agent] = true
				merged[idx].AgentsAgreed++
			}
			if rc.Confidence > merged[idx].Confidence {
				merged[idx].Confidence = rc.Confidence
			}
			if merged[idx].Type == "" {
				merged[idx].Type = rc.Type
			}
			if merged[idx].ImageURL == "" {
				merged[idx].ImageURL = rc.ImageURL
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].AgentsAgreed > merged[j].AgentsAgreed
	})

	result := Result{Candidates: merged, ParseSource: ParseSourceRaw}
	result.Consensus = consensusOf(merged, len(outcomes), len(succ))
	return result
}

func candidateKey(mk, mdl string) string {
	return utils.NormalizeField(mk) + "\x00" + utils.NormalizeField(mdl)
}

// consensusOf buckets agreement on the top-ranked candidate. The ratio is
// taken against every invoked agent, so an errored agent weakens the
// consensus even though it contributed no candidates.
func consensusOf(candidates []Candidate, totalInvoked, succeeded int) Consensus {
	c := Consensus{TotalAgents: totalInvoked}
	if len(candidates) == 0 || totalInvoked == 0 {
		c.Level = ConsensusNone
		return c
	}
	c.AgentsAgreeing = candidates[0].AgentsAgreed
	switch {
	case succeeded <= 1:
		c.Level = ConsensusSingle
	case c.AgentsAgreeing == totalInvoked:
		c.Level = ConsensusFull
	case float64(c.AgentsAgreeing)/float64(totalInvoked) > 0.5:
		c.Level = ConsensusMajority
	case c.AgentsAgreeing >= 2:
		c.Level = ConsensusPartial
	default:
		c.Level = ConsensusLow
	}
	return c
}

// annotateAgreement recomputes agents_agreed for synthesized candidates
// against the raw lists, so the agreement math does not depend on the
// synthesis agent reporting it honestly.
func annotateAgreement(candidates []Candidate, succ []Outcome) {
	counts := make(map[string]map[string]bool)
	for _, oc := range succ {
		for _, rc := range oc.Candidates {
			key := candidateKey(rc.Make, rc.Model)
			if counts[key] == nil {
				counts[key] = make(map[string]bool)
			}
			counts[key][oc.Agent] = true
		}
	}
	for i := range candidates {
		n := len(counts[candidateKey(candidates[i].Make, candidates[i].Model)])
		if n == 0 {
			n = 1
		}
		candidates[i].AgentsAgreed = n
	}
}

// synthesize asks the designated agent to reconcile all raw lists into
// one ranked array.
func synthesize(ctx context.Context, client vision.Client, succ []Outcome) ([]Candidate, error) {
	var b strings.Builder
	b.WriteString(`Several AI agents independently identified the same household product.
Reconcile their answers into a single ranked list, best identification first.
Merge entries that clearly refer to the same product, keep genuinely distinct
alternatives, and assign each a confidence reflecting overall agreement.

`)
	for _, oc := range succ {
		raw, err := json.Marshal(oc.Candidates)
		if err != nil {
			return nil, fmt.Errorf("encode candidates: %w", err)
		}
		fmt.Fprintf(&b, "AGENT %s: %s\n", oc.Agent, raw)
	}
	b.WriteString(`
Respond ONLY with a strict JSON array:
[{"make": string, "model": string, "type": string, "confidence": number 0..1}]`)

	raw, err := client.Generate(ctx, b.String())
	if err != nil {
		return nil, err
	}
	parsed, err := visionmodels.ParseCandidates(raw)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("synthesis returned no candidates")
	}

	out := make([]Candidate, 0, len(parsed))
	for _, rc := range parsed {
		if rc.Make == "" && rc.Model == "" {
			continue
		}
		out = append(out, Candidate{
			Make:       rc.Make,
			Model:      rc.Model,
			Type:       rc.Type,
			Confidence: rc.Confidence,
			ImageURL:   rc.ImageURL,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("synthesis returned no usable candidates")
	}
	return out, nil
}

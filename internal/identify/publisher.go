package identify

import "sync"

// publisher serializes lifecycle transitions into the ordered event
// stream. Agent completions arrive from concurrent goroutines; the
// channel send plus the counter mutex are the only synchronization the
// stream needs.
type publisher struct {
	ch    chan<- Event
	total int

	mu        sync.Mutex
	completed int
}

func newPublisher(ch chan<- Event, total int) *publisher {
	return &publisher{ch: ch, total: total}
}

func (p *publisher) init(agents []string) {
	p.ch <- Event{Type: EventInit, Payload: InitPayload{Agents: agents, Total: p.total}}
}

func (p *publisher) agentStart(agent string) {
	p.ch <- Event{Type: EventAgentStart, Payload: AgentStartPayload{Agent: agent}}
}

// agentComplete emits the completion event carrying a running
// completed/total counter. The counter increment and the send happen
// under the same lock so counters on the wire are monotonic.
func (p *publisher) agentComplete(oc Outcome) {
	p.mu.Lock()
	p.completed++
	payload := AgentCompletePayload{
		Agent:      oc.Agent,
		Success:    oc.Success,
		DurationMS: oc.Duration.Milliseconds(),
		Error:      oc.Error,
		Completed:  p.completed,
		Total:      p.total,
	}
	p.ch <- Event{Type: EventAgentComplete, Payload: payload}
	p.mu.Unlock()
}

func (p *publisher) synthesisStart(agent string) {
	p.ch <- Event{Type: EventSynthesisStart, Payload: SynthesisStartPayload{Agent: agent}}
}

func (p *publisher) complete(payload CompletePayload) {
	p.ch <- Event{Type: EventComplete, Payload: payload}
}

func (p *publisher) error(message string) {
	p.ch <- Event{Type: EventError, Payload: ErrorPayload{Message: message}}
}

package identify

// EventType names one progress event on the identification stream.
type EventType string

const (
	EventInit           EventType = "init"
	EventAgentStart     EventType = "agent_start"
	EventAgentComplete  EventType = "agent_complete"
	EventSynthesisStart EventType = "synthesis_start"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Event is one entry on the ordered progress stream. Payload is the
// JSON-marshalable body matching the event type.
type Event struct {
	Type    EventType
	Payload interface{}
}

type InitPayload struct {
	Agents []string `json:"agents"`
	Total  int      `json:"total"`
}

type AgentStartPayload struct {
	Agent string `json:"agent"`
}

type AgentCompletePayload struct {
	Agent      string `json:"agent"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
}

type SynthesisStartPayload struct {
	Agent string `json:"agent,omitempty"`
}

// AgentDetail summarizes one agent's outcome inside the terminal event.
type AgentDetail struct {
	Agent      string `json:"agent"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Candidates int    `json:"candidates"`
}

type CompletePayload struct {
	Results         []Candidate       `json:"results"`
	AgentsUsed      []string          `json:"agents_used"`
	AgentsSucceeded int               `json:"agents_succeeded"`
	AgentDetails    []AgentDetail     `json:"agent_details"`
	AgentErrors     map[string]string `json:"agent_errors,omitempty"`
	Consensus       Consensus         `json:"consensus"`
	SynthesisAgent  string            `json:"synthesis_agent,omitempty"`
	SynthesisError  string            `json:"synthesis_error,omitempty"`
	TotalDurationMS int64             `json:"total_duration_ms"`
	ParseSource     string            `json:"parse_source"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Package progress consumes an identification event stream on the
// client side and tracks per-agent state for display.
package progress

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// AgentState is one agent's progress as seen on the stream.
type AgentState struct {
	Name       string
	Status     Status
	DurationMS int64
	Error      string
}

// Consumer accepts raw SSE bytes in arbitrary chunks and maintains the
// run state. Unknown event types and unknown payload fields are ignored
// so the consumer keeps working as the stream grows new fields.
type Consumer struct {
	buf          bytes.Buffer
	agents       []*AgentState
	byName       map[string]*AgentState
	total        int
	completed    int
	synthesizing bool
	terminal     bool
	failure      string
	result       json.RawMessage
}

func NewConsumer() *Consumer {
	return &Consumer{byName: make(map[string]*AgentState)}
}

// Feed appends raw stream bytes and processes every complete frame.
// Partial frames stay buffered until the rest arrives.
func (c *Consumer) Feed(p []byte) {
	c.buf.Write(p)
	for {
		raw := c.buf.Bytes()
		i := bytes.Index(raw, []byte("\n\n"))
		if i < 0 {
			return
		}
		frame := string(raw[:i])
		c.buf.Next(i + 2)
		c.handleFrame(frame)
	}
}

func (c *Consumer) handleFrame(frame string) {
	var event, data string
	for _, line := range strings.Split(frame, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	if event == "" {
		return
	}

	switch event {
	case "init":
		var p struct {
			Agents []string `json:"agents"`
			Total  int      `json:"total"`
		}
		if json.Unmarshal([]byte(data), &p) != nil {
			return
		}
		c.total = p.Total
		for _, name := range p.Agents {
			c.agent(name)
		}
	case "agent_start":
		var p struct {
			Agent string `json:"agent"`
		}
		if json.Unmarshal([]byte(data), &p) != nil || p.Agent == "" {
			return
		}
		c.agent(p.Agent).Status = StatusRunning
	case "agent_complete":
		var p struct {
			Agent      string `json:"agent"`
			Success    bool   `json:"success"`
			DurationMS int64  `json:"duration_ms"`
			Error      string `json:"error"`
			Completed  int    `json:"completed"`
		}
		if json.Unmarshal([]byte(data), &p) != nil || p.Agent == "" {
			return
		}
		a := c.agent(p.Agent)
		a.DurationMS = p.DurationMS
		a.Error = p.Error
		if p.Success {
			a.Status = StatusDone
		} else {
			a.Status = StatusFailed
		}
		if p.Completed > c.completed {
			c.completed = p.Completed
		}
	case "synthesis_start":
		c.synthesizing = true
	case "complete":
		c.terminal = true
		c.result = json.RawMessage(data)
	case "error":
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal([]byte(data), &p)
		c.terminal = true
		c.failure = p.Message
	}
}

// agent returns the tracked state for name, registering it on first
// sight in arrival order.
func (c *Consumer) agent(name string) *AgentState {
	if a, ok := c.byName[name]; ok {
		return a
	}
	a := &AgentState{Name: name, Status: StatusPending}
	c.byName[name] = a
	c.agents = append(c.agents, a)
	return a
}

// Agents returns a snapshot of per-agent state in arrival order.
func (c *Consumer) Agents() []AgentState {
	out := make([]AgentState, len(c.agents))
	for i, a := range c.agents {
		out[i] = *a
	}
	return out
}

// Progress is the fraction of agents that have settled, 0 to 1.
func (c *Consumer) Progress() float64 {
	if c.total == 0 {
		if c.terminal {
			return 1
		}
		return 0
	}
	return float64(c.completed) / float64(c.total)
}

func (c *Consumer) Synthesizing() bool { return c.synthesizing }

// Done reports whether a terminal event has arrived.
func (c *Consumer) Done() bool { return c.terminal }

// Failure is the terminal error message, empty on success.
func (c *Consumer) Failure() string { return c.failure }

// Result is the raw terminal payload, nil until the complete event.
func (c *Consumer) Result() json.RawMessage { return c.result }

package progress

import (
	"testing"
)

const stream = "event: init\n" +
	"data: {\"agents\":[\"anthropic\",\"openai\"],\"total\":2}\n\n" +
	"event: agent_start\n" +
	"data: {\"agent\":\"anthropic\"}\n\n" +
	"event: agent_start\n" +
	"data: {\"agent\":\"openai\"}\n\n" +
	"event: agent_complete\n" +
	"data: {\"agent\":\"openai\",\"success\":true,\"duration_ms\":1200,\"completed\":1,\"total\":2}\n\n" +
	"event: agent_complete\n" +
	"data: {\"agent\":\"anthropic\",\"success\":false,\"error\":\"timeout\",\"duration_ms\":60000,\"completed\":2,\"total\":2}\n\n" +
	"event: synthesis_start\n" +
	"data: {}\n\n" +
	"event: complete\n" +
	"data: {\"results\":[],\"agents_succeeded\":1}\n\n"

func TestConsumerTracksAgentStates(t *testing.T) {
	c := NewConsumer()
	c.Feed([]byte(stream))

	agents := c.Agents()
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if agents[0].Name != "anthropic" || agents[1].Name != "openai" {
		t.Errorf("arrival order not preserved: %+v", agents)
	}
	if agents[0].Status != StatusFailed || agents[0].Error != "timeout" {
		t.Errorf("anthropic state = %+v, want failed with timeout", agents[0])
	}
	if agents[1].Status != StatusDone || agents[1].DurationMS != 1200 {
		t.Errorf("openai state = %+v, want done in 1200ms", agents[1])
	}
	if !c.Synthesizing() {
		t.Error("synthesis_start not observed")
	}
	if !c.Done() || c.Failure() != "" {
		t.Errorf("terminal state wrong: done=%v failure=%q", c.Done(), c.Failure())
	}
	if c.Progress() != 1 {
		t.Errorf("progress = %v, want 1", c.Progress())
	}
	if len(c.Result()) == 0 {
		t.Error("terminal payload not captured")
	}
}

func TestConsumerHandlesPartialFrames(t *testing.T) {
	c := NewConsumer()
	// Deliver the stream byte by byte; state must be identical.
	for i := 0; i < len(stream); i++ {
		c.Feed([]byte{stream[i]})
	}

	if !c.Done() {
		t.Fatal("stream not terminal after byte-wise delivery")
	}
	agents := c.Agents()
	if len(agents) != 2 || agents[1].Status != StatusDone {
		t.Errorf("agent state wrong after byte-wise delivery: %+v", agents)
	}
}

func TestConsumerProgressMidRun(t *testing.T) {
	c := NewConsumer()
	c.Feed([]byte("event: init\ndata: {\"agents\":[\"a\",\"b\"],\"total\":2}\n\n"))
	if c.Progress() != 0 {
		t.Errorf("progress = %v, want 0", c.Progress())
	}
	c.Feed([]byte("event: agent_complete\ndata: {\"agent\":\"a\",\"success\":true,\"completed\":1,\"total\":2}\n\n"))
	if c.Progress() != 0.5 {
		t.Errorf("progress = %v, want 0.5", c.Progress())
	}
	if c.Done() {
		t.Error("run must not be terminal yet")
	}
}

func TestConsumerErrorEvent(t *testing.T) {
	c := NewConsumer()
	c.Feed([]byte("event: error\ndata: {\"message\":\"all agents failed: openai: timeout\"}\n\n"))

	if !c.Done() {
		t.Fatal("error event must be terminal")
	}
	if c.Failure() == "" {
		t.Error("failure message not captured")
	}
}

func TestConsumerIgnoresUnknownEvents(t *testing.T) {
	c := NewConsumer()
	c.Feed([]byte("event: heartbeat\ndata: {}\n\nevent: init\ndata: {\"agents\":[\"a\"],\"total\":1}\n\n"))

	if c.Done() {
		t.Error("unknown event must not be terminal")
	}
	if len(c.Agents()) != 1 {
		t.Errorf("init after unknown event not processed: %+v", c.Agents())
	}
}

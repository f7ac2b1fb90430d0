package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the control plane.
type EventType string

const (
	EventOversightNew     EventType = "oversight.new"
	EventOversightDecided EventType = "oversight.decided"
	EventOversightLedger  EventType = "oversight.ledger"
	EventOversightHandoff EventType = "oversight.handoff"
	EventEngineKill       EventType = "engine.kill"
	EventAgentStatus      EventType = "agent.status"
	EventAgentMessage     EventType = "agent.message"
	EventRunPhase         EventType = "run.phase"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	Agent     string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events. Implementations must be safe for
// concurrent use; the transport layer subscribes here for broadcast.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, agent string, runID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Agent:     agent,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

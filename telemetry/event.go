package telemetry

import "time"

// EventType classifies a lifecycle event.
type EventType string

const (
	// EventUserRequest records the initial user request entering a loop.
	EventUserRequest EventType = "user_request"
	// EventThought records the model's reasoning text extracted from a reply.
	EventThought EventType = "thought"
	// EventAction records a validated action invocation about to execute.
	EventAction EventType = "action"
	// EventObservation records the result of an executed action.
	EventObservation EventType = "observation"
	// EventResponse records the final response terminating a loop.
	EventResponse EventType = "response"
	// EventError records recoverable and terminal errors alike.
	EventError EventType = "error"
	// EventProviderCall records one completion attempt against one
	// provider, successful or not. Emitted by the provider gateway, never
	// by the engine.
	EventProviderCall EventType = "provider_call"
	// EventCacheMetrics carries provider-reported prompt-cache token counts.
	// Emitted by the provider gateway, never by the engine.
	EventCacheMetrics EventType = "cache_metrics"
)

// Event is one structured lifecycle record. Events are immutable after
// construction; sinks must copy anything they retain beyond the Record call.
type Event struct {
	RequestID    string         `json:"request_id"`
	UserID       string         `json:"user_id,omitempty"`
	Type         EventType      `json:"type"`
	Turn         int            `json:"turn"`
	AgentName    string         `json:"agent_name"`
	Content      string         `json:"content"`
	Model        string         `json:"model,omitempty"`
	ActionName   string         `json:"action_name,omitempty"`
	ActionParams map[string]any `json:"action_params,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Sink receives lifecycle events. Record must be safe for concurrent use by
// independent requests and should return quickly; slow exporters buffer
// internally rather than stalling the caller.
type Sink interface {
	Record(ev Event)
}

// NoOpSink discards all events. The engine substitutes it for nil sinks.
type NoOpSink struct{}

// Record implements Sink.
func (NoOpSink) Record(Event) {}

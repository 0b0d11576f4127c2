package events

// Event represents a structured state change emitted by the exchange daemon.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for components that expose events optionally.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record is the serialised event form surfaced over RPC and logs.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

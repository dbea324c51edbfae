package telemetry

import "sync"

// InMemorySink buffers events in order of arrival. Intended for tests and
// local debugging; it grows without bound, so production deployments should
// use a durable sink instead.
type InMemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemorySink returns an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Record implements Sink.
func (s *InMemorySink) Record(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Events returns a snapshot of everything recorded so far.
func (s *InMemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Event, len(s.events))
	copy(cp, s.events)
	return cp
}

// EventsOfType returns recorded events matching the given type, in order.
func (s *InMemorySink) EventsOfType(t EventType) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops all recorded events.
func (s *InMemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

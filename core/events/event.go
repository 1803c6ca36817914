package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"refdrop/observability/logging"
)

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Attributed events expose flat string attributes for logs and indexers.
type Attributed interface {
	Event
	Attributes() map[string]string
}

// Sensitive events name the attributes that must not reach logs verbatim.
type Sensitive interface {
	SensitiveKeys() []string
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// LogEmitter writes every event as one structured log line.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{slog.String("event", evt.EventType())}
	if attributed, ok := evt.(Attributed); ok {
		masked := make(map[string]struct{})
		if sensitive, ok := evt.(Sensitive); ok {
			for _, key := range sensitive.SensitiveKeys() {
				masked[key] = struct{}{}
			}
		}
		fields := attributed.Attributes()
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, ok := masked[key]; ok {
				attrs = append(attrs, logging.MaskField(key, fields[key]))
				continue
			}
			attrs = append(attrs, slog.String(key, fields[key]))
		}
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "event", attrs...)
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// Multi fans each event out to every emitter.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

package dbset

import (
	"context"

	"go.mongodb.org/mongo-driver/event"
)

// EventKind tags the driver-level events a Context re-emits.
type EventKind int

const (
	EventCommandStarted EventKind = iota
	EventCommandSucceeded
	EventCommandFailed
	EventConnectionFailed
)

func (k EventKind) String() string {
	switch k {
	case EventCommandStarted:
		return "command_started"
	case EventCommandSucceeded:
		return "command_succeeded"
	case EventCommandFailed:
		return "command_failed"
	case EventConnectionFailed:
		return "connection_failed"
	}
	return "unknown"
}

// Event carries one driver event with its native payload. Exactly one payload
// field is non-nil, selected by Kind. The Context adds no fields of its own.
type Event struct {
	Kind EventKind

	CommandStarted   *event.CommandStartedEvent
	CommandSucceeded *event.CommandSucceededEvent
	CommandFailed    *event.CommandFailedEvent
	ConnectionFailed *event.ServerHeartbeatFailedEvent
}

// EventSink receives every re-emitted driver event. Sinks run on the driver's
// monitor goroutines and must not block.
type EventSink func(Event)

func commandMonitor(sink EventSink) *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			sink(Event{Kind: EventCommandStarted, CommandStarted: e})
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			sink(Event{Kind: EventCommandSucceeded, CommandSucceeded: e})
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			sink(Event{Kind: EventCommandFailed, CommandFailed: e})
		},
	}
}

func serverMonitor(sink EventSink) *event.ServerMonitor {
	return &event.ServerMonitor{
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			sink(Event{Kind: EventConnectionFailed, ConnectionFailed: e})
		},
	}
}

package event

import (
	"context"
)

// EventType is the kind of a bus event; KafkaBus carries it in the
// message's "type" header, not in QueryEventGo.Payload.
type EventType byte

const (
	TypeUnknown        EventType = 0
	TypeQueryExecuted  EventType = 1
	TypeSchemaReloaded EventType = 2
	TypeHeartbeat      EventType = 3
)

// QueryEventGo is the high-level Go struct for one bus event: a
// completed query execution or a metadata schema reload signal.
// Payload carries the publisher's detail bytes as is; for
// TypeQueryExecuted cmd/mdxquery-service sends JSON with the MDX text
// and cell count (the user travels in UserName).
type QueryEventGo struct {
	EventID   string
	TraceID   string
	Timestamp int64
	Type      EventType
	UserName  string
	Payload   []byte
}

// Bus abstracts the underlying Kafka/Redpanda implementation query
// execution and schema-reload signals travel over.
type Bus interface {
	// Publish sends event to the "mdx-events" topic.
	Publish(ctx context.Context, event *QueryEventGo) error

	// Subscribe listens for events on topic, used by
	// cmd/mdxquery-service to call metacache.Reload on TypeSchemaReloaded.
	Subscribe(ctx context.Context, topic string) (<-chan *QueryEventGo, error)

	// Close flushes buffers and closes connections.
	Close() error
}

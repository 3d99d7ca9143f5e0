package backends

import (
	"context"
	"time"
)

// Message is one message parked in a dead letter queue, as delivered by a broker session
type Message struct {
	Data       []byte
	Properties map[string]any

	// Message metadata
	MessageID       string
	CorrelationID   string
	ContentType     string
	Priority        int
	Persistent      bool
	DeliveryCount   uint32
	OriginalAddress string // address the message was sent to before it was dead-lettered
	Timestamp       time.Time

	// Broker specific metadata (annotations, stream sequence, partition offset, ...)
	InternalMetadata map[string]any
}

// Session owns one connection to one broker endpoint
type Session interface {
	// Endpoint returns the URI the session was opened against
	Endpoint() string

	// Browse enumerates the queue without removing anything. visit is called once per
	// message in broker order; an error returned by visit stops the enumeration and is
	// returned unchanged.
	Browse(ctx context.Context, queue string, visit func(*Message) error) error

	// Consume removes every message from the queue and returns how many were removed
	Consume(ctx context.Context, queue string) (int, error)

	// Close closes the connection to the broker
	Close() error
}

// SessionFactory opens a session against a single endpoint
type SessionFactory func(ctx context.Context, endpoint string) (Session, error)

// StatsProvider is an optional interface for sessions that can report queue statistics
// without enumerating the queue
type StatsProvider interface {
	QueueStats(ctx context.Context, queue string) (*QueueStats, error)
}

// QueueStats contains statistics for a queue
type QueueStats struct {
	Name          string
	MessageCount  int64
	ConsumerCount int
	EnqueueCount  int64 // total messages enqueued (lifetime), if the broker reports it
	DequeueCount  int64 // total messages dequeued (lifetime), if the broker reports it
}

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes the audit action.
type EventType string

const (
	TypeQueryExecuted EventType = "QUERY_EXECUTED"
	TypeQueryDenied   EventType = "QUERY_DENIED"
	TypeSchemaReload  EventType = "SCHEMA_RELOAD"
)

// AuditEvent represents a single immutable log entry for one query
// execution (or schema reload signal).
type AuditEvent struct {
	EventID    uuid.UUID
	Timestamp  time.Time
	UserName   string
	Action     EventType
	MDXText    string
	DurationMs int64
	CellCount  int
	Err        string
}

// Logger is the interface for recording audit events.
type Logger interface {
	LogQuery(ctx context.Context, userName, mdxText string, duration time.Duration, cellCount int, err error)
	LogSchemaReload(ctx context.Context)
	Close() error
}

// AsyncClickHouseLogger buffers events and flushes them in batches;
// flush only prints a summary line, no ClickHouse client is wired in.
type AsyncClickHouseLogger struct {
	eventCh chan *AuditEvent
	doneCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAsyncLogger creates a logger with a buffered channel (e.g., size 10,000).
func NewAsyncLogger() *AsyncClickHouseLogger {
	l := &AsyncClickHouseLogger{
		eventCh: make(chan *AuditEvent, 10000),
		doneCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.worker()
	return l
}

// LogQuery records one evaluated query: its requesting user, its MDX
// text, how long evaluation took, how many cells it produced, and
// whether it failed.
func (l *AsyncClickHouseLogger) LogQuery(_ context.Context, userName, mdxText string, duration time.Duration, cellCount int, err error) {
	event := &AuditEvent{
		EventID:    uuid.New(),
		Timestamp:  time.Now().UTC(),
		UserName:   userName,
		Action:     TypeQueryExecuted,
		MDXText:    mdxText,
		DurationMs: duration.Milliseconds(),
		CellCount:  cellCount,
	}
	if err != nil {
		event.Action = TypeQueryDenied
		event.Err = err.Error()
	}
	l.push(event)
}

// LogSchemaReload records a metacache reload triggered by an inbound
// SchemaReloaded event.
func (l *AsyncClickHouseLogger) LogSchemaReload(_ context.Context) {
	l.push(&AuditEvent{EventID: uuid.New(), Timestamp: time.Now().UTC(), Action: TypeSchemaReload})
}

func (l *AsyncClickHouseLogger) push(event *AuditEvent) {
	select {
	case l.eventCh <- event:
	default:
		fmt.Printf("AUDIT_DROP: buffer full, dropped event %s\n", event.EventID)
	}
}

// worker consumes events and writes them in batches.
func (l *AsyncClickHouseLogger) worker() {
	defer l.wg.Done()

	batch := make([]*AuditEvent, 0, 100)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.eventCh:
			batch = append(batch, event)
			if len(batch) >= 100 {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-l.doneCh:
			if len(batch) > 0 {
				l.flush(batch)
			}
			return
		}
	}
}

// flush simulates writing to ClickHouse. In production, this uses clickhouse-go.
func (l *AsyncClickHouseLogger) flush(events []*AuditEvent) {
	fmt.Printf("[AUDIT_FLUSH] writing %d events. first: %s %s\n", len(events), events[0].Action, events[0].EventID)
}

func (l *AsyncClickHouseLogger) Close() error {
	close(l.doneCh)
	l.wg.Wait()
	return nil
}

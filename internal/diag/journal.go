package diag

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Journal buffer sizing and query limits.
const (
	// journalBuffer is how many events can queue before Record drops.
	journalBuffer = 256

	// defaultListLimit is the page size when the caller does not set one.
	defaultListLimit = 50

	// maxListLimit caps the page size for journal queries.
	maxListLimit = 200

	// journalTimeLayout is fixed width so ORDER BY occurred_at sorts
	// chronologically. RFC3339Nano trims trailing zeros and would not.
	journalTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Filter controls which journal entries List returns.
type Filter struct {
	Kind    Kind   // optional: filter by event kind
	Adapter string // optional: filter by adapter name
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains paginated journal entries.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Journal persists diagnostic events to SQLite. Writes are buffered through
// a channel and flushed by a single goroutine, so Record never blocks the
// engine or aggregator loops. When the buffer is full events are dropped
// and counted rather than queued.
type Journal struct {
	db      *sql.DB
	logger  Logger
	buf     chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewJournal creates a journal writing to db and starts its writer
// goroutine. Call Close to flush and stop it.
func NewJournal(db *sql.DB, logger Logger) *Journal {
	j := &Journal{
		db:     db,
		logger: logger,
		buf:    make(chan Event, journalBuffer),
		done:   make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Record queues an event for persistence. It never blocks: if the buffer
// is full the event is dropped and counted.
func (j *Journal) Record(ev Event) {
	select {
	case j.buf <- ev:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Close stops the writer goroutine after flushing queued events.
// The database connection itself is not closed; the caller owns it.
func (j *Journal) Close() error {
	close(j.done)
	j.wg.Wait()
	return nil
}

// writeLoop drains the buffer into SQLite until Close is called, then
// flushes whatever is still queued.
func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case ev := <-j.buf:
			j.insert(ev)
		case <-j.done:
			for {
				select {
				case ev := <-j.buf:
					j.insert(ev)
				default:
					return
				}
			}
		}
	}
}

// insert writes one event. Failures are logged and the event is lost;
// the journal is advisory history, not a ledger.
func (j *Journal) insert(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO diagnostic_events (id, occurred_at, kind, adapter, property, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Timestamp.Format(journalTimeLayout),
		string(ev.Kind),
		ev.Adapter,
		ev.Property,
		ev.Detail,
	)
	if err != nil && j.logger != nil {
		j.logger.Warn("journal insert failed", "id", ev.ID, "error", err)
	}
}

// List returns journal entries matching the filter, newest first.
func (j *Journal) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Adapter != "" {
		conditions = append(conditions, "adapter = ?")
		args = append(args, filter.Adapter)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE is assembled from parameterised conditions, no user input in
	// the SQL string itself.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM diagnostic_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := j.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, occurred_at, kind, adapter, property, detail FROM diagnostic_events %s ORDER BY occurred_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var occurredAt, kind string

		if err := rows.Scan(&ev.ID, &occurredAt, &kind, &ev.Adapter, &ev.Property, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		ev.Kind = Kind(kind)

		t, err := time.Parse(journalTimeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", occurredAt, err)
		}
		ev.Timestamp = t

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	if events == nil {
		events = []Event{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

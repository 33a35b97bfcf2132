package diag

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/calder-iot/shadowbridge/internal/infrastructure/config"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/database"
	_ "github.com/calder-iot/shadowbridge/migrations" // register embedded schema
)

// openJournalDB creates a migrated temporary database.
func openJournalDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// journalEvent builds an event with a fixed timestamp so ordering
// assertions are deterministic.
func journalEvent(kind Kind, adapterName, propertyName string, offset time.Duration) Event {
	ev := New(kind, adapterName, propertyName, "detail for "+string(kind))
	ev.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset)
	return ev
}

func TestJournalRecordAndList(t *testing.T) {
	db := openJournalDB(t)
	j := NewJournal(db.DB, nil)

	j.Record(journalEvent(KindCommandDropped, "projector", "projPower", 0))
	j.Record(journalEvent(KindTranslationError, "avr", "", time.Second))
	j.Record(journalEvent(KindUnroutableProperty, "", "ghostProp", 2*time.Second))

	// Close flushes the buffer.
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	result, err := j.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("Total = %d, want 3", result.Total)
	}
	if len(result.Events) != 3 {
		t.Fatalf("len(Events) = %d, want 3", len(result.Events))
	}

	// Newest first.
	wantKinds := []Kind{KindUnroutableProperty, KindTranslationError, KindCommandDropped}
	for i, ev := range result.Events {
		if ev.Kind != wantKinds[i] {
			t.Errorf("Events[%d].Kind = %q, want %q", i, ev.Kind, wantKinds[i])
		}
	}

	// Round trip preserves fields.
	last := result.Events[2]
	if last.Adapter != "projector" || last.Property != "projPower" {
		t.Errorf("Events[2] = %+v, want projector/projPower", last)
	}
	if !last.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Events[2].Timestamp = %v, want 2026-03-01T12:00:00Z", last.Timestamp)
	}
}

func TestJournalListFilters(t *testing.T) {
	db := openJournalDB(t)
	j := NewJournal(db.DB, nil)

	j.Record(journalEvent(KindCommandDropped, "projector", "projPower", 0))
	j.Record(journalEvent(KindCommandDropped, "avr", "avrPower", time.Second))
	j.Record(journalEvent(KindInvalidValue, "avr", "avrVolume", 2*time.Second))
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()

	byKind, err := j.List(ctx, Filter{Kind: KindCommandDropped})
	if err != nil {
		t.Fatalf("List(kind) error = %v", err)
	}
	if byKind.Total != 2 {
		t.Errorf("kind filter Total = %d, want 2", byKind.Total)
	}

	byAdapter, err := j.List(ctx, Filter{Adapter: "avr"})
	if err != nil {
		t.Fatalf("List(adapter) error = %v", err)
	}
	if byAdapter.Total != 2 {
		t.Errorf("adapter filter Total = %d, want 2", byAdapter.Total)
	}

	both, err := j.List(ctx, Filter{Kind: KindCommandDropped, Adapter: "avr"})
	if err != nil {
		t.Fatalf("List(kind+adapter) error = %v", err)
	}
	if both.Total != 1 || len(both.Events) != 1 {
		t.Fatalf("combined filter Total = %d, want 1", both.Total)
	}
	if both.Events[0].Property != "avrPower" {
		t.Errorf("Property = %q, want avrPower", both.Events[0].Property)
	}
}

func TestJournalListPagination(t *testing.T) {
	db := openJournalDB(t)
	j := NewJournal(db.DB, nil)

	for i := 0; i < 5; i++ {
		j.Record(journalEvent(KindStreamError, "avr", "", time.Duration(i)*time.Second))
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	page, err := j.List(context.Background(), Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	if len(page.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(page.Events))
	}

	// Newest first, offset 2 skips the two most recent.
	want := time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC)
	if !page.Events[0].Timestamp.Equal(want) {
		t.Errorf("Events[0].Timestamp = %v, want %v", page.Events[0].Timestamp, want)
	}
}

func TestJournalRecordAfterListEmpty(t *testing.T) {
	db := openJournalDB(t)
	j := NewJournal(db.DB, nil)
	defer j.Close() //nolint:errcheck // Test cleanup

	result, err := j.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 0 || len(result.Events) != 0 {
		t.Errorf("empty journal: Total = %d, len = %d, want 0, 0", result.Total, len(result.Events))
	}
	if result.Events == nil {
		t.Error("Events = nil, want empty slice")
	}
}

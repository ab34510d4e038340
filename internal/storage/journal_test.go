package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal() error: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRead(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	ts := time.Now().UnixMicro()

	if err := j.Record(ctx, "ORD_1", "placed", ts, map[string]string{"venue_id": "V1"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Record(ctx, "ORD_1", "complete", ts+1, nil); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Record(ctx, "ORD_2", "rejected", ts+2, nil); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	events, err := j.EventsFor(ctx, "ORD_1")
	if err != nil {
		t.Fatalf("EventsFor() error: %v", err)
	}
	if len(events) != 2 || events[0] != "placed" || events[1] != "complete" {
		t.Errorf("events = %v, want [placed complete]", events)
	}
}

func TestJournal_Metadata(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if v, err := j.GetMetadata(ctx, "missing"); err != nil || v != "" {
		t.Errorf("GetMetadata(missing) = (%q, %v), want empty, nil", v, err)
	}

	if err := j.UpsertMetadata(ctx, "session", "2026-08-30", 1); err != nil {
		t.Fatalf("UpsertMetadata() error: %v", err)
	}
	if err := j.UpsertMetadata(ctx, "session", "2026-08-31", 2); err != nil {
		t.Fatalf("UpsertMetadata() upsert error: %v", err)
	}

	v, err := j.GetMetadata(ctx, "session")
	if err != nil {
		t.Fatalf("GetMetadata() error: %v", err)
	}
	if v != "2026-08-31" {
		t.Errorf("value = %q, want upserted value", v)
	}
}

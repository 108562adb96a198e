package publishlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestFileLog(t *testing.T) *FileLog {
	t.Helper()
	l := NewFileLog(filepath.Join(t.TempDir(), "data", "posted_log.csv"))
	l.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local) }
	if err := l.EnsureExists(context.Background()); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	return l
}

func TestEnsureExists_WritesHeader(t *testing.T) {
	l := newTestFileLog(t)
	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "id,timestamp,status\n" {
		t.Errorf("unexpected new log content: %q", data)
	}

	// A second call must not truncate existing rows.
	ctx := context.Background()
	if err := l.RecordOutcome(ctx, "1", StatusPrepared); err != nil {
		t.Fatal(err)
	}
	if err := l.EnsureExists(ctx); err != nil {
		t.Fatal(err)
	}
	entries, _ := l.Entries(ctx)
	if len(entries) != 1 {
		t.Errorf("EnsureExists dropped rows: %+v", entries)
	}
}

func TestRecordOutcome_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestFileLog(t)

	for range 2 {
		if err := l.RecordOutcome(ctx, "4711", StatusPublished); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	data, _ := os.ReadFile(l.Path())
	if n := strings.Count(string(data), "4711,"); n != 1 {
		t.Errorf("expected exactly one row for 4711, got %d:\n%s", n, data)
	}
	if !strings.Contains(string(data), "4711,2025-06-01 10:00:00,published") {
		t.Errorf("unexpected row format:\n%s", data)
	}
}

func TestRecordOutcome_ReplacesPriorRow(t *testing.T) {
	ctx := context.Background()
	l := newTestFileLog(t)

	if err := l.RecordOutcome(ctx, "1", Failed("upload\nfailed")); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordOutcome(ctx, "2", StatusPrepared); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordOutcome(ctx, "1", StatusPublished); err != nil {
		t.Fatal(err)
	}

	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[1].ID != "1" || entries[1].Status != StatusPublished {
		t.Errorf("expected updated row appended last, got %+v", entries)
	}
}

func TestRecordOutcome_NeverDowngradesPublished(t *testing.T) {
	ctx := context.Background()
	l := newTestFileLog(t)

	if err := l.RecordOutcome(ctx, "1", StatusPublished); err != nil {
		t.Fatal(err)
	}
	err := l.RecordOutcome(ctx, "1", Failed("late error"))
	if !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
	ok, err := l.IsPublished(ctx, "1")
	if err != nil || !ok {
		t.Errorf("expected id to stay published, got %v, %v", ok, err)
	}
}

func TestIsPublished(t *testing.T) {
	ctx := context.Background()
	l := newTestFileLog(t)
	_ = l.RecordOutcome(ctx, "a", StatusPublished)
	_ = l.RecordOutcome(ctx, "b", Failed("x"))

	for id, want := range map[string]bool{"a": true, "b": false, "c": false} {
		got, err := l.IsPublished(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("IsPublished(%s) = %v, want %v", id, got, want)
		}
	}

	ids, err := PublishedIDs(ctx, l)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || !ids["a"] {
		t.Errorf("unexpected published ids: %v", ids)
	}
}

func TestEntries_CollapsesLegacyDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posted_log.csv")
	legacy := "id,timestamp,status\n" +
		"1,2025-01-01 10:00:00,published\n" +
		"1,2025-01-02 10:00:00,failed: retry\n" +
		"2,2025-01-01 10:00:00,failed: x\n" +
		"2,2025-01-03 10:00:00,published\n" +
		"\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := NewFileLog(path).Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	for _, e := range entries {
		if e.Status != StatusPublished {
			t.Errorf("expected published to win for %s, got %q", e.ID, e.Status)
		}
	}
}

func TestFailed(t *testing.T) {
	s := Failed("container  ERROR\nstatus")
	if s != "failed: container ERROR status" || !s.IsFailed() {
		t.Errorf("unexpected failure status %q", s)
	}
	if StatusPublished.IsFailed() {
		t.Error("published is not a failure")
	}
}

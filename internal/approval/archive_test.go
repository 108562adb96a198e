package approval

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestArchive_AppendsTerminalRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "pending_approvals.csv")

	_ = s.Stage(ctx, sampleRecord("1"), sampleRecord("2"), sampleRecord("3"))
	_ = s.MarkPublished(ctx, "1")

	n, err := s.Archive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("first archive: n=%d err=%v", n, err)
	}

	_ = s.MarkRejected(ctx, "2")
	n, err = s.Archive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("second archive: n=%d err=%v", n, err)
	}

	remaining, _ := s.Load(ctx)
	if len(remaining) != 1 || remaining[0].ProductID != "3" {
		t.Errorf("unexpected remaining records: %+v", remaining)
	}

	archived, err := ReadArchive(s.archivePath)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("expected both gzip members to be read, got %d", len(archived))
	}
	if archived[0].State != StatePublished || archived[1].State != StateRejected {
		t.Errorf("unexpected archived states: %s, %s", archived[0].State, archived[1].State)
	}
	if archived[0].Caption != sampleRecord("1").Caption {
		t.Errorf("multi-line caption lost: %q", archived[0].Caption)
	}
}

func TestArchive_NothingToDo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "a.csv")
	_ = s.Stage(ctx, sampleRecord("1"))

	n, err := s.Archive(ctx)
	if err != nil || n != 0 {
		t.Errorf("expected no-op, got n=%d err=%v", n, err)
	}
}

type pathMirror struct {
	pulled, pushed []string
}

func (m *pathMirror) Pull(_ context.Context, p string) error {
	m.pulled = append(m.pulled, filepath.Base(p))
	return nil
}

func (m *pathMirror) Push(_ context.Context, p string) error {
	m.pushed = append(m.pushed, filepath.Base(p))
	return nil
}

func TestArchive_Mirror(t *testing.T) {
	ctx := context.Background()
	m := &pathMirror{}
	s := newTestStore(t, "pending_approvals.csv", WithArchiveMirror(m))

	_ = s.Stage(ctx, sampleRecord("1"))
	_ = s.MarkRejected(ctx, "1")
	if n, err := s.Archive(ctx); err != nil || n != 1 {
		t.Fatalf("archive: n=%d err=%v", n, err)
	}
	if len(m.pulled) != 1 || len(m.pushed) != 1 || m.pushed[0] != "pending_approvals_archive.csv.gz" {
		t.Errorf("archive not mirrored: pulled=%v pushed=%v", m.pulled, m.pushed)
	}

	known, err := s.Known(ctx)
	if err != nil || !known["1"] {
		t.Errorf("archived rejection unknown: %v, %v", known, err)
	}
	if len(m.pulled) != 2 {
		t.Errorf("Known must refresh the archive, pulled=%v", m.pulled)
	}
}

func TestReadArchive_Empty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.csv.gz")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	records, err := ReadArchive(p)
	if err != nil || len(records) != 0 {
		t.Errorf("expected no records, got %v, %v", records, err)
	}
}

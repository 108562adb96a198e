package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/publishlog"
)

func TestFormatDurationShort(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Second:                 "0:05",
		90 * time.Second:                "1:30",
		time.Hour + 2*time.Minute + 3e9: "1:02:03",
	}
	for in, want := range tests {
		if got := FormatDurationShort(in); got != want {
			t.Errorf("FormatDurationShort(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestEllipsize(t *testing.T) {
	if got := Ellipsize("kurz", 10); got != "kurz" {
		t.Errorf("unexpected %q", got)
	}
	if got := Ellipsize("Schöne  Grüße\naus Köln", 8); got != "Schöne …" {
		t.Errorf("unexpected %q", got)
	}
}

func TestConfirm(t *testing.T) {
	tests := map[string]bool{"y\n": true, "Ja\n": true, "yes": true, "\n": false, "n\n": false, "": false}
	for in, want := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(in), &out, "Reject 3 records?"); got != want {
			t.Errorf("Confirm(%q) = %v, want %v", in, got, want)
		}
		if !strings.Contains(out.String(), "Reject 3 records? [y/N]") {
			t.Errorf("question not printed: %q", out.String())
		}
	}
}

func TestPrintRecords(t *testing.T) {
	var out bytes.Buffer
	PrintRecords(&out, []approval.Record{
		{ProductID: "4711", Title: "Pfanne", Caption: "Neu im Shop", ImageURLs: []string{"a", "b"}, Approved: true, State: approval.StatePending},
	})
	line := out.String()
	if !strings.HasPrefix(line, "✓ 4711") || !strings.Contains(line, " 2 img") || !strings.Contains(line, "Neu im Shop") {
		t.Errorf("unexpected output %q", line)
	}

	out.Reset()
	PrintRecords(&out, nil)
	if out.String() != "No records.\n" {
		t.Errorf("unexpected empty output %q", out.String())
	}
}

func TestPrintEntries(t *testing.T) {
	var out bytes.Buffer
	PrintEntries(&out, []publishlog.Entry{{ID: "4711", Timestamp: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC), Status: publishlog.StatusPublished}})
	if !strings.Contains(out.String(), "2025-06-10 09:00:00") || !strings.Contains(out.String(), "4711") || !strings.Contains(out.String(), "published") {
		t.Errorf("unexpected output %q", out.String())
	}
}

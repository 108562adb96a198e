package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/publishlog"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Ellipsize shortens s to at most n runes, marking the cut with "…".
func Ellipsize(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// PrintRecords writes one line per staged record.
func PrintRecords(w io.Writer, records []approval.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}
	for _, r := range records {
		mark := " "
		if r.Approved {
			mark = "✓"
		}
		fmt.Fprintf(w, "%s %-12s %-9s %2d img  %-40s %s\n",
			mark, r.ProductID, r.State, len(r.ImageURLs), Ellipsize(r.Title, 40), Ellipsize(r.Caption, 60))
	}
}

// PrintEntries writes the publish log, one line per entry.
func PrintEntries(w io.Writer, entries []publishlog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Publish log is empty.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-12s %s\n", e.Timestamp.Format(publishlog.TimeLayout), e.ID, e.Status)
	}
}

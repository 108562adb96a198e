// Package publishlog is the durable record of per-item outcomes. It is the
// only guard against posting the same item twice: an id with a published
// entry is never offered again.
package publishlog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the outcome recorded for an item.
type Status string

const (
	StatusPrepared  Status = "prepared"
	StatusPublished Status = "published"

	failedPrefix = "failed: "
)

// TimeLayout is the timestamp format used in the log file.
const TimeLayout = "2006-01-02 15:04:05"

// ErrAlreadyPublished is returned when an outcome other than published is
// recorded for an id that is already published.
var ErrAlreadyPublished = errors.New("item already published")

// Failed builds a "failed: <message>" status. Line breaks in msg are
// flattened so the status stays on one row.
func Failed(msg string) Status {
	msg = strings.Join(strings.Fields(msg), " ")
	return Status(failedPrefix + msg)
}

// IsFailed reports whether s is a failure status.
func (s Status) IsFailed() bool {
	return strings.HasPrefix(string(s), failedPrefix)
}

// Entry is one row of the log.
type Entry struct {
	ID        string    `dynamodbav:"id"`
	Timestamp time.Time `dynamodbav:"timestamp"`
	Status    Status    `dynamodbav:"status"`
}

// Log records outcomes. Implementations keep at most one entry per id.
type Log interface {
	// EnsureExists prepares the backing store. It must be called before any
	// other method in a run.
	EnsureExists(ctx context.Context) error
	// RecordOutcome replaces any prior entry for id with status.
	RecordOutcome(ctx context.Context, id string, status Status) error
	// IsPublished reports whether id has a published entry.
	IsPublished(ctx context.Context, id string) (bool, error)
	// Entries returns every entry.
	Entries(ctx context.Context) ([]Entry, error)
}

// PublishedIDs returns the set of ids with a published entry.
func PublishedIDs(ctx context.Context, l Log) (map[string]bool, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Status == StatusPublished {
			ids[e.ID] = true
		}
	}
	return ids, nil
}

// checkTransition enforces that a published id stays published.
func checkTransition(prev, next Status) error {
	if prev == StatusPublished && next != StatusPublished {
		return ErrAlreadyPublished
	}
	return nil
}

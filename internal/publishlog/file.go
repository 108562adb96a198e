package publishlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
)

var header = []string{"id", "timestamp", "status"}

// FileLog keeps the log as a comma separated UTF-8 file. Every write reads
// the full file, replaces the row for the id and renames a temp file over
// the original, so a crash never leaves a half-written log behind.
// Callers must hold the run lock; the read-modify-write is not safe across
// processes.
type FileLog struct {
	path string
	now  func() time.Time
}

var _ Log = (*FileLog)(nil)

// NewFileLog creates a FileLog at path.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path, now: time.Now}
}

// Path returns the log file location.
func (l *FileLog) Path() string { return l.path }

// EnsureExists creates the file with its header row if it is missing.
func (l *FileLog) EnsureExists(ctx context.Context) error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat publish log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create publish log dir: %w", err)
	}
	log.Info().Str("path", l.path).Msg("Creating publish log")
	return l.write(nil)
}

// RecordOutcome implements Log.
func (l *FileLog) RecordOutcome(ctx context.Context, id string, status Status) error {
	entries, err := l.Entries(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
			continue
		}
		if err := checkTransition(e.Status, status); err != nil {
			return fmt.Errorf("record %q for %s: %w", status, id, err)
		}
	}
	kept = append(kept, Entry{ID: id, Timestamp: l.now(), Status: status})

	if err := l.write(kept); err != nil {
		return err
	}
	log.Debug().Str("productId", id).Str("status", string(status)).Msg("Outcome recorded")
	return nil
}

// IsPublished implements Log.
func (l *FileLog) IsPublished(ctx context.Context, id string) (bool, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ID == id && e.Status == StatusPublished {
			return true, nil
		}
	}
	return false, nil
}

// Entries implements Log. Legacy files may hold several rows per id; they
// are collapsed to one, preferring a published row, else the last one.
func (l *FileLog) Entries(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open publish log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []Entry
	index := make(map[string]int)
	for line := 0; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read publish log: %w", err)
		}
		if line == 0 || len(rec) < 3 || rec[0] == "" {
			continue
		}

		e := Entry{ID: rec[0], Status: Status(rec[2])}
		if ts, err := time.ParseInLocation(TimeLayout, rec[1], time.Local); err == nil {
			e.Timestamp = ts
		}

		if i, ok := index[e.ID]; ok {
			if entries[i].Status != StatusPublished || e.Status == StatusPublished {
				entries[i] = e
			}
			continue
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *FileLog) write(entries []Entry) error {
	pf, err := renameio.NewPendingFile(l.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create temp publish log: %w", err)
	}
	defer pf.Cleanup()

	w := csv.NewWriter(pf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write publish log: %w", err)
	}
	for _, e := range entries {
		if err := w.Write([]string{e.ID, e.Timestamp.Format(TimeLayout), string(e.Status)}); err != nil {
			return fmt.Errorf("write publish log: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write publish log: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace publish log: %w", err)
	}
	return nil
}

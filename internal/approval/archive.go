package approval

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// Archive moves terminal records out of the staging file into the gzip
// archive and returns how many were moved. Each call appends one gzip
// member; readers that handle multistream gzip (gunzip, zcat) see one
// continuous CSV.
func (s *Store) Archive(ctx context.Context) (int, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}

	var keep, done []Record
	for _, r := range records {
		if r.State.Terminal() {
			done = append(done, r)
		} else {
			keep = append(keep, r)
		}
	}
	if len(done) == 0 {
		return 0, nil
	}

	if s.archiveMirror != nil {
		if err := s.archiveMirror.Pull(ctx, s.archivePath); err != nil {
			return 0, fmt.Errorf("pull archive: %w", err)
		}
	}
	if err := appendArchive(s.archivePath, done); err != nil {
		return 0, fmt.Errorf("archive approvals: %w", err)
	}
	if s.archiveMirror != nil {
		if err := s.archiveMirror.Push(ctx, s.archivePath); err != nil {
			return 0, fmt.Errorf("push archive: %w", err)
		}
	}
	if err := s.save(ctx, keep); err != nil {
		return 0, err
	}
	log.Info().Int("archived", len(done)).Str("archive", s.archivePath).Msg("Approvals archived")
	return len(done), nil
}

func appendArchive(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(f)
	w := csv.NewWriter(zw)
	w.Comma = ';'
	if fresh {
		if err := w.Write(columns); err != nil {
			f.Close()
			return err
		}
	}
	for _, r := range records {
		if err := w.Write(r.row()); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadArchive returns every record in a gzip archive written by Archive.
func ReadArchive(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	r := csv.NewReader(zr)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	var (
		idx     map[string]int
		records []Record
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		if idx == nil {
			idx = headerIndex(rec)
			continue
		}
		records = append(records, fromRow(idx, rec))
	}
}

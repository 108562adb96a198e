package approval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Mirror keeps a remote copy of the staging file, so reviewers can work on
// a shared location while runs operate on a local file.
type Mirror interface {
	// Pull refreshes the local file from the remote copy. A missing remote
	// copy is not an error.
	Pull(ctx context.Context, localPath string) error
	// Push uploads the local file.
	Push(ctx context.Context, localPath string) error
}

// Store is the file-backed staging area. It is not safe for concurrent use
// across processes; callers hold the run lock.
type Store struct {
	path          string
	archivePath   string
	codec         codec
	mirror        Mirror
	archiveMirror Mirror
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithArchive sets the gzip archive that Archive appends terminal records to.
func WithArchive(path string) Option {
	return func(s *Store) { s.archivePath = path }
}

// WithMirror attaches a remote mirror.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithArchiveMirror attaches a remote copy of the archive. Without one, an
// archive on ephemeral storage forgets which ids were rejected.
func WithArchiveMirror(m Mirror) Option {
	return func(s *Store) { s.archiveMirror = m }
}

// WithClock overrides the time source for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store at path. The format follows the extension.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		archivePath: strings.TrimSuffix(path, filepath.Ext(path)) + "_archive.csv.gz",
		codec:       codecFor(path),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the staging file location.
func (s *Store) Path() string { return s.path }

// Load returns every staged record. A missing file yields no records.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	if s.mirror != nil {
		if err := s.mirror.Pull(ctx, s.path); err != nil {
			return nil, fmt.Errorf("pull approvals: %w", err)
		}
	}

	rows, err := s.codec.read(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read approvals %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx := headerIndex(rows[0])
	if _, ok := idx["product_id"]; !ok {
		return nil, fmt.Errorf("read approvals %s: missing product_id column", s.path)
	}

	records := make([]Record, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		r := fromRow(idx, rec)
		if r.ProductID == "" {
			continue
		}
		resolveLegacyFiles(&r, idx, rec, filepath.Dir(s.path))
		records = append(records, r)
	}
	return records, nil
}

// resolveLegacyFiles fills caption and image URLs from the side files that
// older staging files referenced instead of embedding the content.
func resolveLegacyFiles(r *Record, idx map[string]int, rec []string, dir string) {
	read := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
			return ""
		}
		p := strings.TrimSpace(rec[i])
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warn().Err(err).Str("productId", r.ProductID).Str("file", p).Msg("Legacy artifact unreadable")
			return ""
		}
		return strings.TrimSpace(string(data))
	}

	if r.Caption == "" {
		r.Caption = read("caption_file")
	}
	if len(r.ImageURLs) == 0 {
		for _, line := range strings.Split(read("image_urls_file"), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				r.ImageURLs = append(r.ImageURLs, line)
			}
		}
	}
}

func (s *Store) save(ctx context.Context, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create approvals dir: %w", err)
	}
	if err := writeRecords(s.codec, s.path, records); err != nil {
		return fmt.Errorf("write approvals %s: %w", s.path, err)
	}
	if s.mirror != nil {
		if err := s.mirror.Push(ctx, s.path); err != nil {
			return fmt.Errorf("push approvals: %w", err)
		}
	}
	return nil
}

func writeRecords(c codec, path string, records []Record) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, columns)
	for _, r := range records {
		rows = append(rows, r.row())
	}
	return c.write(path, rows)
}

// update loads, applies fn and saves.
func (s *Store) update(ctx context.Context, fn func([]Record) ([]Record, error)) error {
	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	return s.save(ctx, records)
}

// Stage upserts records as pending and unapproved, keyed by product id. A
// record already published or rejected is left untouched.
func (s *Store) Stage(ctx context.Context, staged ...Record) error {
	return s.update(ctx, func(records []Record) ([]Record, error) {
		for _, r := range staged {
			r.Approved = false
			r.State = StatePending
			r.UpdatedAt = s.now()

			i := slices.IndexFunc(records, func(e Record) bool { return e.ProductID == r.ProductID })
			switch {
			case i < 0:
				records = append(records, r)
			case records[i].State.Terminal():
				log.Warn().Str("productId", r.ProductID).Str("state", string(records[i].State)).Msg("Not restaging closed record")
				continue
			default:
				records[i] = r
			}
			log.Info().Str("productId", r.ProductID).Int("images", len(r.ImageURLs)).Msg("Staged for approval")
		}
		return records, nil
	})
}

// Known returns the ids of every record in the staging file, whatever its
// state, and of every archived record. None of them may be staged again.
func (s *Store) Known(ctx context.Context) (map[string]bool, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.archiveMirror != nil {
		if err := s.archiveMirror.Pull(ctx, s.archivePath); err != nil {
			return nil, fmt.Errorf("pull archive: %w", err)
		}
	}
	archived, err := ReadArchive(s.archivePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read archive %s: %w", s.archivePath, err)
	}
	ids := make(map[string]bool, len(records)+len(archived))
	for _, r := range slices.Concat(records, archived) {
		ids[r.ProductID] = true
	}
	return ids, nil
}

// ListApproved returns approved records that are not yet terminal.
func (s *Store) ListApproved(ctx context.Context) ([]Record, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if r.Approved && !r.State.Terminal() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Pending returns records still awaiting a decision or publication.
func (s *Store) Pending(ctx context.Context) ([]Record, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if !r.State.Terminal() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Approve sets the approval flag on the given pending records.
func (s *Store) Approve(ctx context.Context, ids ...string) error {
	return s.transition(ctx, ids, func(r *Record) error {
		if r.State.Terminal() {
			return fmt.Errorf("%s is %s", r.ProductID, r.State)
		}
		r.Approved = true
		return nil
	})
}

// MarkRejected moves records to the rejected state.
func (s *Store) MarkRejected(ctx context.Context, ids ...string) error {
	return s.transition(ctx, ids, func(r *Record) error {
		if r.State == StatePublished {
			return fmt.Errorf("%s is already published", r.ProductID)
		}
		r.Approved = false
		r.State = StateRejected
		return nil
	})
}

// MarkPublished moves a record to the published state.
func (s *Store) MarkPublished(ctx context.Context, id string) error {
	return s.transition(ctx, []string{id}, func(r *Record) error {
		r.State = StatePublished
		return nil
	})
}

func (s *Store) transition(ctx context.Context, ids []string, fn func(*Record) error) error {
	return s.update(ctx, func(records []Record) ([]Record, error) {
		for _, id := range ids {
			i := slices.IndexFunc(records, func(e Record) bool { return e.ProductID == id })
			if i < 0 {
				return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
			}
			if err := fn(&records[i]); err != nil {
				return nil, err
			}
			records[i].UpdatedAt = s.now()
		}
		return records, nil
	})
}

// ExportTo writes a copy of the current records to path, in the format its
// extension selects.
func (s *Store) ExportTo(ctx context.Context, path string) error {
	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := writeRecords(codecFor(path), path, records); err != nil {
		return fmt.Errorf("export approvals to %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("records", len(records)).Msg("Approvals exported")
	return nil
}

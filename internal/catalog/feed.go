package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Product export column names, as written by the shop's CSV export.
const (
	ColID          = "id"
	ColTitle       = "titel"
	ColDescription = "description"
	ColImageLink   = "image_link"
	ColStock       = "Bestand"
	ColCategory    = "category"

	// supplementalPrefix is followed by 1..MaxSupplementalImages.
	supplementalPrefix = "Zusatzbild_"
)

// fetchTimeout bounds remote feed downloads.
const fetchTimeout = 2 * time.Minute

// FeedOptions describes how an export file is encoded.
type FeedOptions struct {
	Delimiter string // single character, default ";"
	Encoding  string // declared encoding, default UTF-8
}

func (o FeedOptions) comma() (rune, error) {
	if o.Delimiter == "" {
		return ';', nil
	}
	if o.Delimiter == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(o.Delimiter)
	if size != len(o.Delimiter) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", o.Delimiter)
	}
	return r, nil
}

// Table is a decoded export: a header plus rows addressed by column name.
type Table struct {
	header map[string]int
	Rows   [][]string
}

// Has reports whether the export carries the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.header[col]
	return ok
}

// Get returns the trimmed value of col in row, or "" if absent.
func (t *Table) Get(row []string, col string) string {
	idx, ok := t.header[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ReadTable opens src (a local path or an http(s) URL), decodes it with the
// declared encoding and parses it as delimited text with a header row.
// Rows with more fields than the header are skipped, mirroring the
// exporter's tolerance for malformed lines.
func ReadTable(ctx context.Context, src string, opts FeedOptions) (*Table, error) {
	rc, err := open(ctx, src)
	if err != nil {
		return nil, &FeedError{Path: src, Err: err}
	}
	defer rc.Close()

	comma, err := opts.comma()
	if err != nil {
		return nil, &FeedError{Path: src, Err: err}
	}
	decoded, err := NewDecodingReader(rc, opts.Encoding)
	if err != nil {
		return nil, &FeedError{Path: src, Err: err}
	}

	r := csv.NewReader(decoded)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FeedError{Path: src, Err: errors.New("empty export")}
		}
		return nil, &FeedError{Path: src, Err: fmt.Errorf("read header: %w", err)}
	}

	t := &Table{header: make(map[string]int, len(header))}
	for i, name := range header {
		t.header[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	skipped := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FeedError{Path: src, Err: fmt.Errorf("read row %d: %w", len(t.Rows)+skipped+2, err)}
		}
		if len(row) > len(header) {
			skipped++
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if skipped > 0 {
		log.Warn().Str("path", src).Int("skipped", skipped).Msg("Skipped malformed export rows")
	}
	return t, nil
}

// LoadProducts reads the product export into catalog items.
func LoadProducts(ctx context.Context, src string, opts FeedOptions) ([]Item, error) {
	t, err := ReadTable(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	if !t.Has(ColID) {
		return nil, &FeedError{Path: src, Err: fmt.Errorf("missing %q column", ColID)}
	}

	items := make([]Item, 0, len(t.Rows))
	for _, row := range t.Rows {
		var flags [MaxSupplementalImages]bool
		for i := range flags {
			flags[i] = t.Get(row, supplementalPrefix+strconv.Itoa(i+1)) != ""
		}
		items = append(items, Item{
			ID:          t.Get(row, ColID),
			Title:       t.Get(row, ColTitle),
			Description: t.Get(row, ColDescription),
			Category:    t.Get(row, ColCategory),
			Stock:       ParseStock(t.Get(row, ColStock)),
			Kind:        KindProduct,
			ImageURLs:   ImageURLs(t.Get(row, ColImageLink), flags),
		})
	}

	log.Info().Str("path", src).Int("items", len(items)).Msg("Product export loaded")
	return items, nil
}

// ParseStock converts the exporter's stock column to a non-negative count.
// Values such as "12", "12.0" and "12,0" are accepted; anything else is 0.
// Huge values are capped at math.MaxInt32.
func ParseStock(s string) int {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func open(ctx context.Context, src string) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.Open(src)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("fetch export: status %d", resp.StatusCode)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Package approval is the staging area between caption generation and
// publishing. Prepared posts are written to a shared file (CSV or Excel
// workbook) where a human flips the approved column; the publisher only
// ever reads records from here.
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of a staged record.
type State string

const (
	StatePending   State = "pending"
	StatePublished State = "published"
	StateRejected  State = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StatePublished || s == StateRejected
}

var (
	// ErrMissingArtifact marks an approved record that lacks a caption or
	// image URLs and therefore cannot be published.
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrNotFound is returned when an id is not staged.
	ErrNotFound = errors.New("record not found")
)

// Record is one prepared post awaiting (or past) review.
type Record struct {
	ProductID   string
	Title       string
	Description string
	Caption     string
	ImageURLs   []string
	Approved    bool
	State       State
	UpdatedAt   time.Time
}

// Validate checks that r carries everything the publisher needs.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Caption) == "" {
		return fmt.Errorf("%s: caption: %w", r.ProductID, ErrMissingArtifact)
	}
	if len(r.ImageURLs) == 0 {
		return fmt.Errorf("%s: image urls: %w", r.ProductID, ErrMissingArtifact)
	}
	return nil
}

// Columns of the staging file, in order.
var columns = []string{"product_id", "titel", "description", "caption", "image_urls", "approved", "state", "updated_at"}

const (
	urlSeparator = "|"
	timeLayout   = "2006-01-02 15:04:05"
)

var (
	approvedWords = map[string]bool{"true": true, "wahr": true, "ja": true, "yes": true, "1": true, "x": true}
	rejectedWords = map[string]bool{"rejected": true, "abgelehnt": true, "nein": true, "no": true}
)

// parseFlag interprets a human-edited approved cell. Spreadsheet exports
// produce a variety of spellings; anything not recognised is "not yet".
func parseFlag(s string) (approved, rejected bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	return approvedWords[s], rejectedWords[s]
}

func (r Record) row() []string {
	approved := "false"
	if r.Approved {
		approved = "true"
	}
	updated := ""
	if !r.UpdatedAt.IsZero() {
		updated = r.UpdatedAt.Format(timeLayout)
	}
	return []string{
		r.ProductID,
		r.Title,
		r.Description,
		r.Caption,
		strings.Join(r.ImageURLs, urlSeparator),
		approved,
		string(r.State),
		updated,
	}
}

// fromRow decodes a row using the header index. Unknown or missing
// columns decode as empty.
func fromRow(idx map[string]int, rec []string) Record {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	r := Record{
		ProductID:   get("product_id"),
		Title:       get("titel"),
		Description: get("description"),
		Caption:     get("caption"),
		State:       State(strings.ToLower(get("state"))),
	}
	for _, u := range strings.Split(get("image_urls"), urlSeparator) {
		if u = strings.TrimSpace(u); u != "" {
			r.ImageURLs = append(r.ImageURLs, u)
		}
	}

	approved, rejected := parseFlag(get("approved"))
	r.Approved = approved
	if rejected && !r.State.Terminal() {
		r.State = StateRejected
	}
	if r.State == "" {
		r.State = StatePending
	}
	if ts, err := time.ParseInLocation(timeLayout, get("updated_at"), time.Local); err == nil {
		r.UpdatedAt = ts
	}
	return r
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return idx
}

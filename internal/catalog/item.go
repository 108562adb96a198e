// Package catalog reads the retail catalog exports (products and recipes)
// that feed the posting pipeline. Items are read-only snapshots of the
// exporting system; nothing in this package mutates the source files.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind distinguishes the two catalog sources.
type Kind string

const (
	KindProduct Kind = "product"
	KindRecipe  Kind = "recipe"
)

// MaxSupplementalImages is the number of Zusatzbild columns the shop export carries.
const MaxSupplementalImages = 4

// Item is one product or recipe candidate.
type Item struct {
	ID          string
	Title       string
	Description string
	Category    string
	Stock       int
	Kind        Kind

	// ImageURLs holds the primary image first, followed by any supplemental
	// images in suffix order (_1 … _4).
	ImageURLs []string
}

// validID matches ids that are safe to use as log keys and file names.
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidID reports whether id is present and well-formed.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// FeedError reports a malformed or unreadable catalog export. It is fatal
// to the run: no candidate can be processed without the feed.
type FeedError struct {
	Path string
	Err  error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("catalog feed %s: %v", e.Path, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// SearchText returns the text the seasonal keyword gate matches against.
func (i Item) SearchText() string {
	return strings.Join([]string{i.Title, i.Description, i.Category}, " ")
}

// Package selector narrows a catalog export down to the items that may be
// prepared for posting: well-formed, not yet published, in stock, in
// season, and not reserved by an id pattern.
package selector

import (
	"iter"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/catalog-post-automation/internal/catalog"
)

// Reason explains why an item was rejected. The empty Reason means eligible.
type Reason string

const (
	Eligible        Reason = ""
	ReasonBadID     Reason = "invalid_id"
	ReasonPublished Reason = "already_published"
	ReasonExcluded  Reason = "excluded"
	ReasonStock     Reason = "low_stock"
	ReasonSeason    Reason = "out_of_season"
	ReasonIDPattern Reason = "reserved_id"
)

// Criteria are the business filters of one preparation profile.
type Criteria struct {
	// MinStock is the lowest stock level an item may have (inclusive).
	MinStock int

	// ExcludeIDPattern, when set, rejects ids it matches.
	ExcludeIDPattern *regexp.Regexp

	// Seasons drives the seasonal gate. A nil slice disables the gate.
	Seasons []Season

	// Shuffle randomizes candidate order per run so the same item is not
	// always picked first.
	Shuffle bool
}

// Selector evaluates Criteria against a catalog snapshot.
type Selector struct {
	criteria Criteria
	now      func() time.Time
	rng      *rand.Rand
}

// Option customizes a Selector.
type Option func(*Selector)

// WithClock fixes the time used for the seasonal gate.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// WithRand sets the random source used for shuffling.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) { s.rng = r }
}

// New creates a Selector for the given criteria.
func New(c Criteria, opts ...Option) *Selector {
	s := &Selector{
		criteria: c,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check returns why item is not eligible, or Eligible. published reports
// ids already marked published; excluded reports ids the caller wants
// skipped for other reasons (for example records already staged). Either
// may be nil.
func (s *Selector) Check(item catalog.Item, published, excluded func(id string) bool) Reason {
	switch {
	case !catalog.ValidID(item.ID):
		return ReasonBadID
	case published != nil && published(item.ID):
		return ReasonPublished
	case excluded != nil && excluded(item.ID):
		return ReasonExcluded
	case s.criteria.ExcludeIDPattern != nil && s.criteria.ExcludeIDPattern.MatchString(item.ID):
		return ReasonIDPattern
	case item.Stock < s.criteria.MinStock:
		return ReasonStock
	case s.criteria.Seasons != nil && !IsSeasonallyRelevant(item, s.now().Month(), s.criteria.Seasons):
		return ReasonSeason
	}
	return Eligible
}

// Eligible yields the eligible items of a snapshot, shuffled when the
// criteria ask for it. The sequence is lazy: filters run only as far as
// the caller iterates. items is not modified.
func (s *Selector) Eligible(items []catalog.Item, published, excluded func(id string) bool) iter.Seq[catalog.Item] {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	if s.criteria.Shuffle {
		s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	return func(yield func(catalog.Item) bool) {
		for _, idx := range order {
			item := items[idx]
			if reason := s.Check(item, published, excluded); reason != Eligible {
				log.Trace().Str("productId", item.ID).Str("reason", string(reason)).Msg("Candidate rejected")
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

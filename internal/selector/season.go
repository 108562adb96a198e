package selector

import (
	"slices"
	"strings"
	"time"

	"github.com/fpang/catalog-post-automation/internal/catalog"
)

// Season is a themed period during which only matching items may be posted.
type Season struct {
	Name     string
	Months   []time.Month
	Keywords []string
}

// DefaultSeasons are the shop's themed periods: Christmas in December,
// Easter in March and April.
var DefaultSeasons = []Season{
	{
		Name:     "christmas",
		Months:   []time.Month{time.December},
		Keywords: []string{"weihnachten", "xmas", "christmas", "advent"},
	},
	{
		Name:     "easter",
		Months:   []time.Month{time.March, time.April},
		Keywords: []string{"ostern", "hase", "frühling", "oster"},
	},
}

// IsSeasonallyRelevant applies the seasonal gate for the given month.
// Inside a season only items mentioning one of its keywords pass; outside
// every season items mentioning any seasonal keyword are held back.
func IsSeasonallyRelevant(item catalog.Item, month time.Month, seasons []Season) bool {
	text := catalog.MatchText(item.SearchText())

	for _, s := range seasons {
		if slices.Contains(s.Months, month) {
			return containsAny(text, s.Keywords)
		}
	}
	for _, s := range seasons {
		if containsAny(text, s.Keywords) {
			return false
		}
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, catalog.MatchText(k)) {
			return true
		}
	}
	return false
}

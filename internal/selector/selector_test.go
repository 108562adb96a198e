package selector

import (
	"math/rand/v2"
	"regexp"
	"slices"
	"testing"
	"time"

	"github.com/fpang/catalog-post-automation/internal/catalog"
)

func fixedClock(month time.Month) func() time.Time {
	return func() time.Time { return time.Date(2025, month, 15, 9, 0, 0, 0, time.UTC) }
}

func TestIsSeasonallyRelevant(t *testing.T) {
	xmas := catalog.Item{ID: "1", Title: "Weihnachten Plätzchenform"}
	neutral := catalog.Item{ID: "2", Title: "Gusseisentopf"}
	spring := catalog.Item{ID: "3", Title: "Schale", Description: "Perfekt für den Frühling"}

	tests := []struct {
		name  string
		item  catalog.Item
		month time.Month
		want  bool
	}{
		{"christmas item in december", xmas, time.December, true},
		{"christmas item in june", xmas, time.June, false},
		{"neutral item in june", neutral, time.June, true},
		{"neutral item in december", neutral, time.December, false},
		{"spring item in april", spring, time.April, true},
		{"spring item in june", spring, time.June, false},
		{"christmas item at easter", xmas, time.March, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSeasonallyRelevant(tt.item, tt.month, DefaultSeasons); got != tt.want {
				t.Errorf("IsSeasonallyRelevant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSeasonallyRelevant_CaseAndCategory(t *testing.T) {
	item := catalog.Item{ID: "1", Title: "Form", Category: "ADVENT"}
	if !IsSeasonallyRelevant(item, time.December, DefaultSeasons) {
		t.Error("expected category keyword match regardless of case")
	}
}

func TestCheck_StockThreshold(t *testing.T) {
	s := New(Criteria{MinStock: 3})
	if got := s.Check(catalog.Item{ID: "a", Stock: 2}, nil, nil); got != ReasonStock {
		t.Errorf("stock 2: expected %q, got %q", ReasonStock, got)
	}
	if got := s.Check(catalog.Item{ID: "a", Stock: 3}, nil, nil); got != Eligible {
		t.Errorf("stock 3: expected eligible, got %q", got)
	}
}

func TestCheck_Reasons(t *testing.T) {
	s := New(Criteria{
		MinStock:         1,
		ExcludeIDPattern: regexp.MustCompile(`^\d+H[A-Z]\d+`),
		Seasons:          DefaultSeasons,
	}, WithClock(fixedClock(time.June)))

	published := func(id string) bool { return id == "posted" }
	staged := func(id string) bool { return id == "staged" }

	tests := []struct {
		item catalog.Item
		want Reason
	}{
		{catalog.Item{ID: "", Stock: 5}, ReasonBadID},
		{catalog.Item{ID: "has space", Stock: 5}, ReasonBadID},
		{catalog.Item{ID: "posted", Stock: 5}, ReasonPublished},
		{catalog.Item{ID: "staged", Stock: 5}, ReasonExcluded},
		{catalog.Item{ID: "12HX3", Stock: 5}, ReasonIDPattern},
		{catalog.Item{ID: "ok", Stock: 0}, ReasonStock},
		{catalog.Item{ID: "ok", Stock: 5, Title: "Osterhase"}, ReasonSeason},
		{catalog.Item{ID: "ok", Stock: 5, Title: "Topf"}, Eligible},
	}
	for _, tt := range tests {
		if got := s.Check(tt.item, published, staged); got != tt.want {
			t.Errorf("Check(%+v) = %q, want %q", tt.item, got, tt.want)
		}
	}
}

func TestEligible_NeverOffersPublished(t *testing.T) {
	items := []catalog.Item{
		{ID: "a", Stock: 10},
		{ID: "b", Stock: 10},
		{ID: "c", Stock: 10},
	}
	published := map[string]bool{"b": true}
	s := New(Criteria{MinStock: 3, Shuffle: true})

	for run := 0; run < 20; run++ {
		for item := range s.Eligible(items, func(id string) bool { return published[id] }, nil) {
			if item.ID == "b" {
				t.Fatalf("run %d: published item offered again", run)
			}
		}
	}
}

func TestEligible_ShuffleIsSeeded(t *testing.T) {
	items := make([]catalog.Item, 20)
	for i := range items {
		items[i] = catalog.Item{ID: string(rune('a' + i)), Stock: 10}
	}

	collect := func(seed uint64) []string {
		s := New(Criteria{Shuffle: true}, WithRand(rand.New(rand.NewPCG(seed, seed))))
		var ids []string
		for item := range s.Eligible(items, nil, nil) {
			ids = append(ids, item.ID)
		}
		return ids
	}

	first, again := collect(7), collect(7)
	if !slices.Equal(first, again) {
		t.Errorf("same seed produced different orders: %v vs %v", first, again)
	}
	if len(first) != len(items) {
		t.Errorf("expected all %d items, got %d", len(items), len(first))
	}
}

func TestEligible_StopsEarly(t *testing.T) {
	items := []catalog.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	s := New(Criteria{})

	var got []string
	for item := range s.Eligible(items, nil, nil) {
		got = append(got, item.ID)
		if len(got) == 1 {
			break
		}
	}
	if !slices.Equal(got, []string{"a"}) {
		t.Errorf("expected first item only, got %v", got)
	}
}

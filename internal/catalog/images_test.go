package catalog

import (
	"reflect"
	"testing"
)

func TestImageURLs(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		flags   [MaxSupplementalImages]bool
		want    []string
	}{
		{"empty primary", "", [4]bool{true}, nil},
		{"primary only", "https://s.example/a/b.jpg", [4]bool{}, []string{"https://s.example/a/b.jpg"}},
		{
			"sparse supplemental",
			"https://s.example/a/b.jpg",
			[4]bool{true, false, true, false},
			[]string{"https://s.example/a/b.jpg", "https://s.example/a/b_1.jpg", "https://s.example/a/b_3.jpg"},
		},
		{
			"no extension",
			"https://s.example/a/b",
			[4]bool{true},
			[]string{"https://s.example/a/b", "https://s.example/a/b_1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ImageURLs(tt.primary, tt.flags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ImageURLs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHighResURL(t *testing.T) {
	got := HighResURL("https://s.example/bilder/normal/topf.jpg")
	if got != "https://s.example/bilder/gross/topf.jpg" {
		t.Errorf("unexpected high-res URL: %s", got)
	}
}

func TestNormalizeImageURL(t *testing.T) {
	got := NormalizeImageURL("https://s.example/bilder/gross/K%C3%BCrbis-Suppe-_-R944.jpg")
	if got != "https://s.example/bilder/gross/kuerbis-suppe-_-r944.jpg" {
		t.Errorf("unexpected normalized URL: %s", got)
	}
}

func TestRecipePhotoURL(t *testing.T) {
	got := RecipePhotoURL("https://s.example/gross/", "Grüne  Soße", "R513")
	if got != "https://s.example/gross/gruene-sosse-_-r513.jpg" {
		t.Errorf("unexpected recipe photo URL: %s", got)
	}
}

func TestPlainText(t *testing.T) {
	in := "<b>Zutaten</b><br>200 g Mehl<br/>\r\n2&nbsp;Eier<p>1   Prise Salz</p>"
	want := "Zutaten\n200 g Mehl\n2 Eier\n1 Prise Salz"
	if got := PlainText(in); got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}
}

func TestPlainText_PlainInput(t *testing.T) {
	if got := PlainText("  Ein   schöner\n\n\nTopf  "); got != "Ein schöner\nTopf" {
		t.Errorf("unexpected plain text: %q", got)
	}
}

func TestMatchText_NormalizesDecomposedUmlauts(t *testing.T) {
	decomposed := "Fru\u0308hling"
	if MatchText(decomposed) != MatchText("Frühling") {
		t.Errorf("expected decomposed and composed forms to match")
	}
}

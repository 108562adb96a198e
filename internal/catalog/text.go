package catalog

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// PlainText strips HTML markup from an export description and collapses
// whitespace: line breaks (<br>, block elements) become single newlines,
// runs of spaces collapse to one, blank lines are dropped. Plain text
// passes through with whitespace collapsed.
func PlainText(s string) string {
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("br").Each(func(_ int, sel *goquery.Selection) {
				sel.ReplaceWithNodes(newline())
			})
			doc.Find("p, li, div, tr, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
				sel.PrependNodes(newline())
				sel.AppendNodes(newline())
			})
			s = doc.Text()
		}
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// MatchText prepares text for keyword matching: NFC-normalized so composed
// and decomposed umlauts compare equal, then lower-cased.
func MatchText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

func newline() *html.Node {
	return &html.Node{Type: html.TextNode, Data: "\n"}
}

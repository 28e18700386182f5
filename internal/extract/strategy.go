package extract

import (
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Fallback texts used when no strategy matches.
const (
	NoDescription = "Description not found."
)

// TextStrategy yields a piece of text from a page, or "" when it does not apply.
type TextStrategy interface {
	Name() string
	Text(doc *goquery.Document) string
}

// LinkStrategy selects candidate attachment anchors.
// ok is false when the strategy does not apply to the page.
type LinkStrategy interface {
	Name() string
	Links(doc *goquery.Document) (links *goquery.Selection, ok bool)
}

// Strategies are the ordered fallback lists used when no API payload exists.
type Strategies struct {
	Title       []TextStrategy
	Description []TextStrategy
	Attachments []LinkStrategy
}

// DefaultStrategies returns the lists matching the stock CTFd themes.
func DefaultStrategies() Strategies {
	return Strategies{
		Title: []TextStrategy{
			SelectorText{Selector: ".challenge-name, .challenge-title, h1.challenge-name, h1.challenge-title", Separator: " "},
			SelectorText{Selector: "h1", Separator: " ", FirstOnly: true},
			SelectorText{Selector: "title", Separator: " ", FirstOnly: true},
			Fixed("challenge"),
		},
		Description: []TextStrategy{
			SelectorText{Selector: ".challenge-desc", Separator: "\n", FirstOnly: true},
			SelectorText{Selector: ".challenge-description", Separator: "\n", FirstOnly: true},
			SelectorText{Selector: ".challenge-description-body", Separator: "\n", FirstOnly: true},
			SelectorText{Selector: ".challenge-text", Separator: "\n", FirstOnly: true},
			SelectorText{Selector: "#challenge-desc", Separator: "\n", FirstOnly: true},
			LongestBlock{Selector: "p, div", MinRunes: 40},
			Fixed(NoDescription),
		},
		Attachments: []LinkStrategy{
			ContainerLinks{Containers: ".challenge-files, .challenge-file, .files, .attachments"},
			SelectorLinks{Selector: "a[download]"},
			SelectorLinks{Selector: "a[href]"},
		},
	}
}

// FirstText evaluates strategies in order and returns the first non-empty text.
func FirstText(doc *goquery.Document, strategies []TextStrategy) string {
	for _, s := range strategies {
		if t := s.Text(doc); t != "" {
			return t
		}
	}
	return ""
}

// FirstLinks evaluates strategies in order and returns the first selection that applies.
func FirstLinks(doc *goquery.Document, strategies []LinkStrategy) *goquery.Selection {
	for _, s := range strategies {
		if links, ok := s.Links(doc); ok {
			return links
		}
	}
	return nil
}

// SelectorText reads the text of the elements matching Selector.
// Elements are tried in document order unless FirstOnly restricts the match
// to the first element.
type SelectorText struct {
	Selector  string
	Separator string
	FirstOnly bool
}

// Name implements TextStrategy.
func (s SelectorText) Name() string { return "selector:" + s.Selector }

// Text implements TextStrategy.
func (s SelectorText) Text(doc *goquery.Document) string {
	sel := doc.Find(s.Selector)
	if s.FirstOnly {
		sel = sel.First()
	}
	for _, n := range sel.Nodes {
		if t := joinText([]*html.Node{n}, s.Separator); t != "" {
			return t
		}
	}
	return ""
}

// LongestBlock picks the longest text among matching elements, provided it
// is longer than MinRunes.
type LongestBlock struct {
	Selector string
	MinRunes int
}

// Name implements TextStrategy.
func (s LongestBlock) Name() string { return "longest:" + s.Selector }

// Text implements TextStrategy.
func (s LongestBlock) Text(doc *goquery.Document) string {
	best, bestLen := "", 0
	for _, n := range doc.Find(s.Selector).Nodes {
		t := joinText([]*html.Node{n}, " ")
		l := utf8.RuneCountInString(t)
		if l > bestLen && l > s.MinRunes {
			best, bestLen = t, l
		}
	}
	return best
}

// Fixed always yields the same text.
type Fixed string

// Name implements TextStrategy.
func (f Fixed) Name() string { return "fixed" }

// Text implements TextStrategy.
func (f Fixed) Text(*goquery.Document) string { return string(f) }

// ContainerLinks selects anchors inside attachment containers.
// It applies whenever a container exists, even an empty one.
type ContainerLinks struct {
	Containers string
}

// Name implements LinkStrategy.
func (s ContainerLinks) Name() string { return "containers:" + s.Containers }

// Links implements LinkStrategy.
func (s ContainerLinks) Links(doc *goquery.Document) (*goquery.Selection, bool) {
	containers := doc.Find(s.Containers)
	if containers.Length() == 0 {
		return nil, false
	}
	return containers.Find("a[href]"), true
}

// SelectorLinks selects anchors matching Selector and applies when any match.
type SelectorLinks struct {
	Selector string
}

// Name implements LinkStrategy.
func (s SelectorLinks) Name() string { return "links:" + s.Selector }

// Links implements LinkStrategy.
func (s SelectorLinks) Links(doc *goquery.Document) (*goquery.Selection, bool) {
	links := doc.Find(s.Selector)
	return links, links.Length() > 0
}

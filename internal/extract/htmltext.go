package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLToText converts an HTML fragment into plain text: every text node is
// trimmed, empty ones are dropped and the rest are joined with newlines.
func HTMLToText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return joinText(nodes, "\n")
}

// joinText trims and joins the text nodes under the given nodes.
func joinText(nodes []*html.Node, sep string) string {
	var parts []string
	for _, n := range nodes {
		parts = collectText(n, parts)
	}
	return strings.Join(parts, sep)
}

func collectText(n *html.Node, parts []string) []string {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			parts = append(parts, t)
		}
		return parts
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" || n.Data == "template" {
			return parts
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		parts = collectText(c, parts)
	}
	return parts
}

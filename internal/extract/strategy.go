// Package extract pulls structured fields out of archive pages.
//
// Each field has an ordered list of named strategies, most structural first
// and free text last. The first strategy that yields an acceptable value wins.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one way of finding a value of type T in a page.
type Strategy[T any] struct {
	Name  string
	Apply func(doc *goquery.Document) (T, bool)
}

// First runs the strategies in order and returns the first hit with the
// name of the strategy that produced it.
func First[T any](doc *goquery.Document, strategies []Strategy[T]) (T, string, bool) {
	var zero T
	if doc == nil {
		return zero, "", false
	}
	for _, s := range strategies {
		if v, ok := s.Apply(doc); ok {
			return v, s.Name, true
		}
	}
	return zero, "", false
}

// collapse trims and folds internal whitespace.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// bodyText is the visible text of the page with scripts and styles removed.
// The document is cloned so other strategies still see the scripts.
func bodyText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	var sb strings.Builder
	body.Contents().Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(textWithBreaks(s))
	})
	return sb.String()
}

// textWithBreaks keeps block boundaries as newlines so line-anchored
// patterns do not run across elements.
func textWithBreaks(s *goquery.Selection) string {
	var sb strings.Builder
	s.Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "#text" {
			sb.WriteString(sel.Text())
			return
		}
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			sb.WriteString(textWithBreaks(child))
		})
		switch goquery.NodeName(sel) {
		case "p", "div", "li", "tr", "br", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article", "dd", "dt", "td", "th":
			sb.WriteString("\n")
		}
	})
	return sb.String()
}

// scripts returns the text of every script element, JSON-LD first.
func scripts(doc *goquery.Document) []string {
	var ld, other []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		text := s.Text()
		if strings.TrimSpace(text) == "" {
			return
		}
		if strings.EqualFold(typ, "application/ld+json") {
			ld = append(ld, text)
		} else {
			other = append(other, text)
		}
	})
	return append(ld, other...)
}

package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// filterLinks drops links already known to the store and applies the per-run
// test limit, preserving listing order.
func filterLinks(links []string, known map[string]struct{}, limit int) []string {
	fresh := make([]string, 0, len(links))
	for _, link := range links {
		if _, exists := known[link]; exists {
			continue
		}
		fresh = append(fresh, link)
	}
	if limit > 0 && len(fresh) > limit {
		fresh = fresh[:limit]
	}
	return fresh
}

// collapseText flattens an element's text to single-space-separated words,
// mirroring how the detail pages are fed to the classifier.
func collapseText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

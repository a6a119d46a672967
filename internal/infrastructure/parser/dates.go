package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeDateExpr = regexp.MustCompile(`^(\d+)\s+(hour|day|week|month)s?\s+ago$`)

// Listing pages across the three sites show dates in a handful of shapes.
var absoluteDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
}

// parseAbsoluteDate tries each known calendar layout in turn.
func parseAbsoluteDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range absoluteDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseFlexibleDate handles both absolute dates ("July 20, 2025") and the
// relative forms some listings use ("14 hours ago", "2 weeks ago").
func parseFlexibleDate(raw string, now time.Time) (time.Time, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))

	if match := relativeDateExpr.FindStringSubmatch(cleaned); match != nil {
		quantity, err := strconv.Atoi(match[1])
		if err != nil {
			return time.Time{}, false
		}
		switch match[2] {
		case "hour":
			return now.Add(-time.Duration(quantity) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, -quantity), true
		case "week":
			return now.AddDate(0, 0, -7*quantity), true
		case "month":
			return now.AddDate(0, -quantity, 0), true
		}
	}

	return parseAbsoluteDate(raw)
}

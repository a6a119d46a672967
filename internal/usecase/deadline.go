package usecase

import (
	"strings"
	"time"
)

// Deadline strings carrying any of these are not calendar dates ("Rolling",
// "Not Specified", "reviewed quarterly", "N/A") and normalize to no concrete
// deadline. "specified" intentionally catches "Not Specified".
var nonDateKeywords = []string{"rolling", "ongoing", "specified", "quarterly", "n/a"}

// The enrichment prompt pins deadlines to YYYY-MM-DD; the fallback layouts
// absorb the formats the model slips into anyway.
var deadlineLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// normalizeDeadline maps a classifier deadline string to a concrete calendar
// date, or nil when the string is a non-date keyword or unparseable. The
// original text is stored separately by the caller.
func normalizeDeadline(raw string) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	lowered := strings.ToLower(trimmed)
	for _, keyword := range nonDateKeywords {
		if strings.Contains(lowered, keyword) {
			return nil
		}
	}

	for _, layout := range deadlineLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			parsed = dateOnly(parsed.UTC())
			return &parsed
		}
	}

	return nil
}

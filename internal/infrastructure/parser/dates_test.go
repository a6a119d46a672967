package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAbsoluteDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"July 20, 2025", time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)},
		{"Jul 20, 2025", time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)},
		{"20 July 2025", time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)},
		{"20 Jul 2025", time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)},
		{"2025-07-20", time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)},
		{"  Sep 5, 2025  ", time.Date(2025, time.September, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		parsed, ok := parseAbsoluteDate(tt.raw)
		require.True(t, ok, "expected %q to parse", tt.raw)
		assert.True(t, parsed.Equal(tt.want), "raw %q: got %v want %v", tt.raw, parsed, tt.want)
	}

	_, ok := parseAbsoluteDate("last Tuesday")
	assert.False(t, ok)
}

func TestParseFlexibleDateRelativeForms(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"14 hours ago", now.Add(-14 * time.Hour)},
		{"1 day ago", now.AddDate(0, 0, -1)},
		{"2 weeks ago", now.AddDate(0, 0, -14)},
		{"3 months ago", now.AddDate(0, -3, 0)},
		{"  2 Days Ago ", now.AddDate(0, 0, -2)},
	}

	for _, tt := range tests {
		parsed, ok := parseFlexibleDate(tt.raw, now)
		require.True(t, ok, "expected %q to parse", tt.raw)
		assert.True(t, parsed.Equal(tt.want), "raw %q: got %v want %v", tt.raw, parsed, tt.want)
	}
}

func TestParseFlexibleDateFallsBackToAbsolute(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC)

	parsed, ok := parseFlexibleDate("July 20, 2025", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC), parsed)

	_, ok = parseFlexibleDate("someday soon", now)
	assert.False(t, ok)
}

package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FundingScanner/internal/domain"
)

func TestProcessedUpsertIgnoresConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProcessedRepository(db, testLogger())

	deadline := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	processedAt := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO processed_opportunities "+
			"(link,title,source,geographic_scope,funding_amount,funder,deadline,raw_deadline_text,focus_areas,summary,processed_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) ON CONFLICT (link) DO NOTHING")).
		WithArgs("https://example.org/a", "A", "Global South Opportunities", "Ethiopia", "$50,000", "Example Foundation",
			deadline, "2025-06-30", "Agriculture, Health", "Grants.", processedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.ProcessedOpportunity{
		Link:            "https://example.org/a",
		Title:           "A",
		Source:          domain.SourceGSO,
		GeographicScope: "Ethiopia",
		FundingAmount:   "$50,000",
		Funder:          "Example Foundation",
		Deadline:        &deadline,
		RawDeadlineText: "2025-06-30",
		FocusAreas:      "Agriculture, Health",
		Summary:         "Grants.",
		ProcessedAt:     processedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredOnlyTouchesConcreteDeadlines(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProcessedRepository(db, testLogger())

	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM processed_opportunities WHERE deadline IS NOT NULL AND deadline < $1")).
		WithArgs("2025-01-01").
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := repo.DeleteExpired(context.Background(), time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteStaleMatchesUnspecifiedDeadlineRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProcessedRepository(db, testLogger())

	cutoff := time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM processed_opportunities WHERE deadline IS NULL "+
			"AND raw_deadline_text IN ($1,$2) AND processed_at < $3")).
		WithArgs("Not Specified", "N/A", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	deleted, err := repo.DeleteStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

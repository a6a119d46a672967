package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FundingScanner/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpsertRawSkipsKnownLinks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRawRepository(db, testLogger())

	scrapedAt := time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)
	opps := []domain.RawOpportunity{
		{Link: "https://example.org/a", Title: "A", Source: domain.SourceGSO, FullText: "text a", Status: domain.StatusPendingAnalysis, ScrapedAt: scrapedAt},
		{Link: "https://example.org/b", Title: "B", Source: domain.SourceOD, FullText: "text b", Status: domain.StatusPendingAnalysis, ScrapedAt: scrapedAt},
	}

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO raw_opportunities (link,title,source,full_text,status,scraped_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6),($7,$8,$9,$10,$11,$12) ON CONFLICT (link) DO NOTHING")).
		WithArgs(
			"https://example.org/a", "A", "Global South Opportunities", "text a", "pending_analysis", scrapedAt,
			"https://example.org/b", "B", "Opportunity Desk", "text b", "pending_analysis", scrapedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.UpsertRaw(context.Background(), opps)
	require.NoError(t, err)
	// One of the two conflicted; the store reports only genuine inserts.
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRawEmptyBatchTouchesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRawRepository(db, testLogger())

	inserted, err := repo.UpsertRaw(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllLinksPagesThroughTable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRawRepository(db, testLogger())

	firstPage := sqlmock.NewRows([]string{"link"})
	for i := 0; i < linkPageSize; i++ {
		firstPage.AddRow(fmt.Sprintf("https://example.org/%04d", i))
	}
	secondPage := sqlmock.NewRows([]string{"link"}).AddRow("https://example.org/last")

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT link FROM raw_opportunities ORDER BY link LIMIT 1000 OFFSET 0")).
		WillReturnRows(firstPage)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT link FROM raw_opportunities ORDER BY link LIMIT 1000 OFFSET 1000")).
		WillReturnRows(secondPage)

	links, err := repo.AllLinks(context.Background())
	require.NoError(t, err)
	assert.Contains(t, links, "https://example.org/last")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingSelectsOnlyUnanalyzedRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRawRepository(db, testLogger())

	scrapedAt := time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT link, title, source, full_text, status, scraped_at FROM raw_opportunities WHERE status = $1")).
		WithArgs("pending_analysis").
		WillReturnRows(sqlmock.NewRows([]string{"link", "title", "source", "full_text", "status", "scraped_at"}).
			AddRow("https://example.org/a", "A", "Opportunity Desk", "text", "pending_analysis", scrapedAt))

	pending, err := repo.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://example.org/a", pending[0].Link)
	assert.Equal(t, domain.StatusPendingAnalysis, pending[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdateStatusSingleStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRawRepository(db, testLogger())

	mock.ExpectExec("UPDATE raw_opportunities AS r").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.BulkUpdateStatus(context.Background(), []domain.StatusUpdate{
		{Link: "https://example.org/a", Status: domain.StatusRelevant},
		{Link: "https://example.org/b", Status: domain.StatusIrrelevant},
		{Link: "https://example.org/c", Status: domain.StatusExpired},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdateStatusEmptyBatchTouchesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRawRepository(db, testLogger())

	require.NoError(t, repo.BulkUpdateStatus(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
